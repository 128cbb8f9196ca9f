// Package storage defines persistence contracts for classroom-economy state.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/edutown/economy/internal/economy/domain/ledger"
	"github.com/edutown/economy/internal/economy/domain/loan"
	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/domain/review"
	"github.com/edutown/economy/internal/economy/domain/treasury"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// Student is one school member participating in the town economy.
// Employed students carry a job title and salary; unemployed students have
// neither and receive the basic salary track.
type Student struct {
	ID          string
	SchoolID    string
	TownClass   string
	DisplayName string
	JobTitle    string
	JobSalary   money.Cents
	Employed    bool
	CreatedAt   time.Time
}

// Account holds one user's flat balance.
type Account struct {
	ID        string
	SchoolID  string
	UserID    string
	Balance   money.Cents
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerEntry is one immutable balance-affecting transaction record.
// At least one of FromAccountID and ToAccountID is set; Amount is positive.
type LedgerEntry struct {
	ID            string
	SchoolID      string
	FromAccountID string
	ToAccountID   string
	Amount        money.Cents
	Type          ledger.EntryType
	Description   string
	CreatedAt     time.Time
}

// LedgerPage is one page of ledger entries.
type LedgerPage struct {
	Entries       []LedgerEntry
	NextPageToken string
}

// PendingTransfer is one student-submitted, teacher-reviewed transfer intent.
type PendingTransfer struct {
	ID           string
	SchoolID     string
	FromUserID   string
	ToUserID     string
	Amount       money.Cents
	Description  string
	Status       review.Status
	ReviewerID   string
	ReviewedAt   time.Time
	DenialReason string
	CreatedAt    time.Time
}

// Loan is one student loan and its frozen repayment schedule.
type Loan struct {
	ID           string
	SchoolID     string
	BorrowerID   string
	Principal    money.Cents
	TermMonths   int
	RatePercent  float64
	Status       loan.Status
	Outstanding  money.Cents
	Payment      money.Cents
	DueDate      time.Time
	ReviewerID   string
	ReviewedAt   time.Time
	DenialReason string
	CreatedAt    time.Time
}

// LoanPayment is one immutable repayment record.
type LoanPayment struct {
	ID        string
	LoanID    string
	Amount    money.Cents
	CreatedAt time.Time
}

// Treasury is one town-class pooled balance and its tax settings.
type Treasury struct {
	SchoolID  string
	TownClass string
	Balance   money.Cents
	// TaxEnabled gates withholding during salary batches.
	TaxEnabled bool
	// TaxRatePercent is the headline display rate; withholding uses brackets.
	TaxRatePercent float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TreasuryEntry is one immutable signed treasury transaction.
type TreasuryEntry struct {
	ID          string
	SchoolID    string
	TownClass   string
	Amount      money.Cents
	Type        treasury.EntryType
	Description string
	CreatedAt   time.Time
}

// TaxWithholding is one per-student withholding audit record.
type TaxWithholding struct {
	ID          string
	SchoolID    string
	TownClass   string
	UserID      string
	Gross       money.Cents
	Tax         money.Cents
	Net         money.Cents
	RatePercent float64
	CreatedAt   time.Time
}

// Parcel is one unit of ownable town land.
type Parcel struct {
	ID          string
	SchoolID    string
	TownClass   string
	GridX       int
	GridY       int
	Biome       string
	BaseValue   money.Cents
	OwnerID     string
	PurchasedAt time.Time
	CreatedAt   time.Time
}

// Owned reports whether the parcel has an owner.
func (p Parcel) Owned() bool {
	return p.OwnerID != ""
}

// PurchaseRequest is one student offer on a parcel awaiting teacher review.
type PurchaseRequest struct {
	ID           string
	SchoolID     string
	ParcelID     string
	RequesterID  string
	OfferedPrice money.Cents
	Status       review.Status
	ReviewerID   string
	ReviewedAt   time.Time
	DenialReason string
	CreatedAt    time.Time
}

// SalaryBatchResult summarizes one atomic salary run.
type SalaryBatchResult struct {
	TownClass  string
	PaidCount  int
	GrossTotal money.Cents
	TaxTotal   money.Cents
	NetTotal   money.Cents
}

// StudentStore persists school members.
type StudentStore interface {
	CreateStudent(ctx context.Context, student Student) error
	GetStudent(ctx context.Context, schoolID, userID string) (Student, error)
	ListStudentsByTownClass(ctx context.Context, schoolID, townClass string) ([]Student, error)
}

// AccountStore persists balances and the transaction log.
type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) error
	GetAccountByUser(ctx context.Context, schoolID, userID string) (Account, error)
	ListLedgerEntries(ctx context.Context, schoolID, accountID string, pageSize int, pageToken string) (LedgerPage, error)
	// SumLedgerForAccount returns the signed sum of all entries referencing
	// the account; it must equal the account balance at all times.
	SumLedgerForAccount(ctx context.Context, schoolID, accountID string) (money.Cents, error)
	// Deposit credits a user's account with a teacher-granted amount.
	Deposit(ctx context.Context, schoolID, userID string, amount money.Cents, description string) (Account, error)
	// Fine debits a user's account with no balance floor.
	Fine(ctx context.Context, schoolID, userID string, amount money.Cents, description string) (Account, error)
}

// TransferStore persists pending transfers and applies approvals atomically.
type TransferStore interface {
	CreateTransfer(ctx context.Context, transfer PendingTransfer) error
	GetTransfer(ctx context.Context, schoolID, transferID string) (PendingTransfer, error)
	ListTransfersByStatus(ctx context.Context, schoolID string, status review.Status) ([]PendingTransfer, error)
	ListTransfersByUser(ctx context.Context, schoolID, userID string) ([]PendingTransfer, error)
	// ApproveTransfer re-checks status and sender funds inside one
	// transaction, moves the money, and appends the transfer ledger entry.
	ApproveTransfer(ctx context.Context, schoolID, transferID, reviewerID string) (PendingTransfer, error)
	DenyTransfer(ctx context.Context, schoolID, transferID, reviewerID, reason string) (PendingTransfer, error)
}

// LoanStore persists loans, disbursement, and repayment.
type LoanStore interface {
	// CreateLoan rejects borrowers that already hold an open loan.
	CreateLoan(ctx context.Context, loan Loan) error
	GetLoan(ctx context.Context, schoolID, loanID string) (Loan, error)
	ListLoansByBorrower(ctx context.Context, schoolID, borrowerID string) ([]Loan, error)
	ListLoansByStatus(ctx context.Context, schoolID string, status loan.Status) ([]Loan, error)
	// ApproveLoan disburses the principal and activates the loan atomically.
	ApproveLoan(ctx context.Context, schoolID, loanID, reviewerID string) (Loan, error)
	DenyLoan(ctx context.Context, schoolID, loanID, reviewerID, reason string) (Loan, error)
	// RepayLoan debits the borrower, records the payment, decrements the
	// outstanding balance, and closes the loan when it reaches zero.
	RepayLoan(ctx context.Context, schoolID, loanID, borrowerID string, amount money.Cents) (Loan, error)
	ListLoanPayments(ctx context.Context, schoolID, loanID string) ([]LoanPayment, error)
}

// TreasuryStore persists town treasuries, tax settings, and salary batches.
type TreasuryStore interface {
	// EnsureTreasury creates the town treasury when missing and returns it.
	EnsureTreasury(ctx context.Context, schoolID, townClass string) (Treasury, error)
	GetTreasury(ctx context.Context, schoolID, townClass string) (Treasury, error)
	SetTaxEnabled(ctx context.Context, schoolID, townClass string, enabled bool) (Treasury, error)
	DepositTreasury(ctx context.Context, schoolID, townClass string, amount money.Cents, description string) (Treasury, error)
	// WithdrawTreasury rejects withdrawals that would go negative.
	WithdrawTreasury(ctx context.Context, schoolID, townClass string, amount money.Cents, description string) (Treasury, error)
	SetTaxBrackets(ctx context.Context, schoolID, townClass string, brackets []treasury.Bracket) error
	ListTaxBrackets(ctx context.Context, schoolID, townClass string) ([]treasury.Bracket, error)
	ListTreasuryEntries(ctx context.Context, schoolID, townClass string) ([]TreasuryEntry, error)
	ListTaxWithholdings(ctx context.Context, schoolID, townClass string) ([]TaxWithholding, error)
	// PayEmployedSalaries runs the gross/tax/net batch for employed students
	// in one transaction, aborting before any mutation when the treasury
	// cannot cover the total net.
	PayEmployedSalaries(ctx context.Context, schoolID, townClass string) (SalaryBatchResult, error)
	// PayBasicSalary pays a flat tax-exempt amount to unemployed students.
	PayBasicSalary(ctx context.Context, schoolID, townClass string, amount money.Cents) (SalaryBatchResult, error)
}

// LandStore persists parcels and purchase requests.
type LandStore interface {
	CreateParcel(ctx context.Context, parcel Parcel) error
	GetParcel(ctx context.Context, schoolID, parcelID string) (Parcel, error)
	ListParcels(ctx context.Context, schoolID, townClass string) ([]Parcel, error)
	CreatePurchaseRequest(ctx context.Context, request PurchaseRequest) error
	GetPurchaseRequest(ctx context.Context, schoolID, requestID string) (PurchaseRequest, error)
	ListPendingPurchaseRequests(ctx context.Context, schoolID string) ([]PurchaseRequest, error)
	// ApprovePurchaseRequest transfers ownership, moves the payment into the
	// town treasury, and denies sibling requests in one transaction.
	ApprovePurchaseRequest(ctx context.Context, schoolID, requestID, reviewerID string) (PurchaseRequest, error)
	DenyPurchaseRequest(ctx context.Context, schoolID, requestID, reviewerID, reason string) (PurchaseRequest, error)
	// SwapParcelPositions exchanges the grid positions of two parcels
	// atomically.
	SwapParcelPositions(ctx context.Context, schoolID, parcelA, parcelB string) error
}

// AdminStore performs school-wide administrative operations.
type AdminStore interface {
	// FactoryReset wipes the school's entire economic state atomically.
	FactoryReset(ctx context.Context, schoolID string) error
}

// Store aggregates every persistence contract of the economy service.
type Store interface {
	StudentStore
	AccountStore
	TransferStore
	LoanStore
	TreasuryStore
	LandStore
	AdminStore
}

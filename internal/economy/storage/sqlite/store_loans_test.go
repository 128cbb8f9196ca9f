package sqlite

import (
	"context"
	"testing"

	"github.com/edutown/economy/internal/economy/domain/loan"
	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/id"
)

func seedLoan(t *testing.T, store *Store, schoolID, borrowerID string, principal money.Cents, termMonths int) string {
	t.Helper()
	schedule := loan.Amortize(principal, termMonths)
	loanID := id.MustNewID()
	err := store.CreateLoan(context.Background(), storage.Loan{
		ID:          loanID,
		SchoolID:    schoolID,
		BorrowerID:  borrowerID,
		Principal:   principal,
		TermMonths:  termMonths,
		RatePercent: schedule.RatePercent,
		Outstanding: schedule.Total,
		Payment:     schedule.Payment,
	})
	if err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}
	return loanID
}

// A 1050.00 loan over 6 months carries 5% flat interest: 1102.50 owed in
// installments of 183.75.
func TestLoanLifecycle(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedAccount(t, store, "school-1", "alice", 0)
	loanID := seedLoan(t, store, "school-1", "alice", 105000, 6)

	record, err := store.ApproveLoan(ctx, "school-1", loanID, "teacher-1")
	if err != nil {
		t.Fatalf("ApproveLoan() error = %v", err)
	}
	if record.Status != loan.StatusActive {
		t.Errorf("status = %q, want %q", record.Status, loan.StatusActive)
	}
	if record.Outstanding != 110250 {
		t.Errorf("outstanding = %v, want 110250", record.Outstanding)
	}
	if record.Payment != 18375 {
		t.Errorf("payment = %v, want 18375", record.Payment)
	}
	if record.DueDate.IsZero() {
		t.Error("due date not set on approval")
	}
	if got := accountBalance(t, store, "school-1", "alice"); got != 105000 {
		t.Errorf("balance after disbursement = %v, want 105000", got)
	}

	// The borrower needs the interest on top of the disbursed principal.
	if _, err := store.Deposit(ctx, "school-1", "alice", 5250, "side job"); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}

	// 6 × 183.75 covers the 1102.50 owed exactly.
	for i := 0; i < 6; i++ {
		record, err = store.RepayLoan(ctx, "school-1", loanID, "alice", 18375)
		if err != nil {
			t.Fatalf("RepayLoan(#%d) error = %v", i+1, err)
		}
	}
	if record.Status != loan.StatusPaidOff {
		t.Errorf("status = %q, want %q", record.Status, loan.StatusPaidOff)
	}
	if record.Outstanding != 0 {
		t.Errorf("outstanding = %v, want 0", record.Outstanding)
	}

	payments, err := store.ListLoanPayments(ctx, "school-1", loanID)
	if err != nil {
		t.Fatalf("ListLoanPayments() error = %v", err)
	}
	if len(payments) != 6 {
		t.Errorf("recorded %d payments, want 6", len(payments))
	}
	checkLedgerReconciles(t, store, "school-1", "alice")
}

// One open loan per borrower: a second application is rejected while the
// first is pending, approved, or active.
func TestCreateLoanRejectsSecondOpenLoan(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedAccount(t, store, "school-1", "alice", 0)
	loanID := seedLoan(t, store, "school-1", "alice", 50000, 12)

	schedule := loan.Amortize(20000, 6)
	err := store.CreateLoan(ctx, storage.Loan{
		ID:          id.MustNewID(),
		SchoolID:    "school-1",
		BorrowerID:  "alice",
		Principal:   20000,
		TermMonths:  6,
		RatePercent: schedule.RatePercent,
		Outstanding: schedule.Total,
		Payment:     schedule.Payment,
	})
	wantCode(t, err, apperrors.CodeLoanAlreadyOpen)

	// A denied loan frees the borrower to apply again.
	if _, err := store.DenyLoan(ctx, "school-1", loanID, "teacher-1", "too large"); err != nil {
		t.Fatalf("DenyLoan() error = %v", err)
	}
	seedLoan(t, store, "school-1", "alice", 20000, 6)
}

func TestDenyLoanLeavesBalance(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedAccount(t, store, "school-1", "alice", 0)
	loanID := seedLoan(t, store, "school-1", "alice", 50000, 12)

	record, err := store.DenyLoan(context.Background(), "school-1", loanID, "teacher-1", "not yet")
	if err != nil {
		t.Fatalf("DenyLoan() error = %v", err)
	}
	if record.Status != loan.StatusDenied {
		t.Errorf("status = %q, want %q", record.Status, loan.StatusDenied)
	}
	if got := accountBalance(t, store, "school-1", "alice"); got != 0 {
		t.Errorf("balance = %v, want 0 after denial", got)
	}
}

func TestReviewLoanTwice(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedAccount(t, store, "school-1", "alice", 0)
	loanID := seedLoan(t, store, "school-1", "alice", 50000, 12)

	if _, err := store.ApproveLoan(ctx, "school-1", loanID, "teacher-1"); err != nil {
		t.Fatalf("ApproveLoan() error = %v", err)
	}
	_, err := store.ApproveLoan(ctx, "school-1", loanID, "teacher-1")
	wantCode(t, err, apperrors.CodeLoanAlreadyResolved)

	// Double approval must not disburse twice.
	if got := accountBalance(t, store, "school-1", "alice"); got != 50000 {
		t.Errorf("balance = %v, want 50000", got)
	}
}

func TestRepayLoanGuards(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedAccount(t, store, "school-1", "alice", 0)
	loanID := seedLoan(t, store, "school-1", "alice", 50000, 12)

	// Pending loans cannot be repaid.
	_, err := store.RepayLoan(ctx, "school-1", loanID, "alice", 1000)
	wantCode(t, err, apperrors.CodeLoanNotActive)

	if _, err := store.ApproveLoan(ctx, "school-1", loanID, "teacher-1"); err != nil {
		t.Fatalf("ApproveLoan() error = %v", err)
	}

	_, err = store.RepayLoan(ctx, "school-1", loanID, "alice", 0)
	wantCode(t, err, apperrors.CodeAmountNotPositive)

	// 12-month loans carry 10% interest: 55000 owed on a 50000 principal.
	_, err = store.RepayLoan(ctx, "school-1", loanID, "alice", 55001)
	wantCode(t, err, apperrors.CodeLoanPaymentExceedsBalance)

	// Repayments debit the borrower's account; an empty account cannot pay.
	if _, err := store.Fine(ctx, "school-1", "alice", 50000, "reset"); err != nil {
		t.Fatalf("Fine() error = %v", err)
	}
	_, err = store.RepayLoan(ctx, "school-1", loanID, "alice", 1000)
	wantCode(t, err, apperrors.CodeInsufficientFunds)
}

func TestListLoansByStatus(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedStudent(t, store, "school-1", "5a", "bob", 0)
	seedAccount(t, store, "school-1", "alice", 0)
	seedAccount(t, store, "school-1", "bob", 0)

	aliceLoan := seedLoan(t, store, "school-1", "alice", 50000, 12)
	seedLoan(t, store, "school-1", "bob", 20000, 6)

	if _, err := store.ApproveLoan(ctx, "school-1", aliceLoan, "teacher-1"); err != nil {
		t.Fatalf("ApproveLoan() error = %v", err)
	}

	pending, err := store.ListLoansByStatus(ctx, "school-1", loan.StatusPending)
	if err != nil {
		t.Fatalf("ListLoansByStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].BorrowerID != "bob" {
		t.Errorf("pending = %+v, want bob's loan only", pending)
	}

	mine, err := store.ListLoansByBorrower(ctx, "school-1", "alice")
	if err != nil {
		t.Fatalf("ListLoansByBorrower() error = %v", err)
	}
	if len(mine) != 1 || mine[0].Status != loan.StatusActive {
		t.Errorf("alice's loans = %+v, want one active loan", mine)
	}
}

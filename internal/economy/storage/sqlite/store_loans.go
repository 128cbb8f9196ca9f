package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/edutown/economy/internal/economy/domain/ledger"
	"github.com/edutown/economy/internal/economy/domain/loan"
	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/storage"
	"github.com/edutown/economy/internal/platform/id"
	apperrors "github.com/edutown/economy/internal/platform/errors"
)

// CreateLoan files one loan application. A borrower may hold at most one open
// loan, checked inside the same transaction as the insert.
func (s *Store) CreateLoan(ctx context.Context, record storage.Loan) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	loanID := strings.TrimSpace(record.ID)
	schoolID := strings.TrimSpace(record.SchoolID)
	borrowerID := strings.TrimSpace(record.BorrowerID)
	if loanID == "" {
		return fmt.Errorf("loan id is required")
	}
	if schoolID == "" {
		return fmt.Errorf("school id is required")
	}
	if borrowerID == "" {
		return fmt.Errorf("borrower id is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var open int
		err := tx.QueryRow(
			`SELECT COUNT(1) FROM loans
			  WHERE school_id = ? AND borrower_id = ? AND status IN (?, ?, ?)`,
			schoolID, borrowerID,
			string(loan.StatusPending), string(loan.StatusApproved), string(loan.StatusActive),
		).Scan(&open)
		if err != nil {
			return fmt.Errorf("count open loans: %w", err)
		}
		if open > 0 {
			return apperrors.New(apperrors.CodeLoanAlreadyOpen, "borrower already has an open loan")
		}

		_, err = tx.Exec(
			`INSERT INTO loans (
			   id, school_id, borrower_id, principal, term_months, rate_percent,
			   status, outstanding, payment, due_date, created_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			loanID,
			schoolID,
			borrowerID,
			int64(record.Principal),
			record.TermMonths,
			record.RatePercent,
			string(loan.StatusPending),
			int64(record.Outstanding),
			int64(record.Payment),
			nullMillis(record.DueDate),
			toMillis(createdAt),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetLoan returns one loan by id.
func (s *Store) GetLoan(ctx context.Context, schoolID, loanID string) (storage.Loan, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Loan{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		selectLoanSQL+` WHERE school_id = ? AND id = ?`,
		schoolID, loanID,
	)
	record, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Loan{}, storage.ErrNotFound
		}
		return storage.Loan{}, fmt.Errorf("get loan: %w", err)
	}
	return record, nil
}

// ListLoansByBorrower returns a borrower's loans, newest first.
func (s *Store) ListLoansByBorrower(ctx context.Context, schoolID, borrowerID string) ([]storage.Loan, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		selectLoanSQL+` WHERE school_id = ? AND borrower_id = ? ORDER BY created_at DESC, id DESC`,
		schoolID, borrowerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list loans by borrower: %w", err)
	}
	return collectLoans(rows)
}

// ListLoansByStatus returns a school's loans in one status, oldest first.
func (s *Store) ListLoansByStatus(ctx context.Context, schoolID string, status loan.Status) ([]storage.Loan, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		selectLoanSQL+` WHERE school_id = ? AND status = ? ORDER BY created_at ASC, id ASC`,
		schoolID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list loans by status: %w", err)
	}
	return collectLoans(rows)
}

// ApproveLoan disburses the principal to the borrower and activates the loan
// in one transaction. The repayment schedule was frozen at application time.
func (s *Store) ApproveLoan(ctx context.Context, schoolID, loanID, reviewerID string) (storage.Loan, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Loan{}, err
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		record, err := loanForReviewTx(tx, schoolID, loanID)
		if err != nil {
			return err
		}

		accountID, err := accountIDByUserTx(tx, schoolID, record.BorrowerID)
		if err != nil {
			return err
		}
		if err := creditAccountTx(tx, schoolID, accountID, record.Principal, now); err != nil {
			return err
		}
		if err := appendLedgerTx(tx, schoolID, "", accountID, record.Principal, ledger.EntryLoanDisbursement, "loan disbursement", now); err != nil {
			return err
		}

		dueDate := now.AddDate(0, record.TermMonths, 0)
		_, err = tx.Exec(
			`UPDATE loans
			    SET status = ?, reviewer_id = ?, reviewed_at = ?, due_date = ?
			  WHERE school_id = ? AND id = ?`,
			string(loan.StatusActive),
			nullString(reviewerID),
			toMillis(now),
			toMillis(dueDate),
			schoolID,
			loanID,
		)
		if err != nil {
			return fmt.Errorf("activate loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.Loan{}, err
	}
	return s.GetLoan(ctx, schoolID, loanID)
}

// DenyLoan resolves one pending loan without disbursing money.
func (s *Store) DenyLoan(ctx context.Context, schoolID, loanID, reviewerID, reason string) (storage.Loan, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Loan{}, err
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := loanForReviewTx(tx, schoolID, loanID); err != nil {
			return err
		}
		_, err := tx.Exec(
			`UPDATE loans
			    SET status = ?, reviewer_id = ?, reviewed_at = ?, denial_reason = ?
			  WHERE school_id = ? AND id = ?`,
			string(loan.StatusDenied),
			nullString(reviewerID),
			toMillis(now),
			nullString(reason),
			schoolID,
			loanID,
		)
		if err != nil {
			return fmt.Errorf("deny loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.Loan{}, err
	}
	return s.GetLoan(ctx, schoolID, loanID)
}

// RepayLoan debits the borrower, records the payment, and decrements the
// outstanding balance, closing the loan when it reaches zero. All in one
// transaction.
func (s *Store) RepayLoan(ctx context.Context, schoolID, loanID, borrowerID string, amount money.Cents) (storage.Loan, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Loan{}, err
	}
	if amount <= 0 {
		return storage.Loan{}, apperrors.New(apperrors.CodeAmountNotPositive, "repayment amount must be positive")
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(
			selectLoanSQL+` WHERE school_id = ? AND id = ?`,
			schoolID, loanID,
		)
		record, err := scanLoan(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("load loan: %w", err)
		}
		if record.BorrowerID != borrowerID {
			return storage.ErrNotFound
		}
		if record.Status != loan.StatusActive {
			return apperrors.WithMetadata(apperrors.CodeLoanNotActive,
				"loan is not active",
				map[string]string{"status": string(record.Status)})
		}
		if amount > record.Outstanding {
			return apperrors.WithMetadata(apperrors.CodeLoanPaymentExceedsBalance,
				"repayment exceeds the outstanding balance",
				map[string]string{"outstanding": record.Outstanding.String()})
		}

		accountID, err := accountIDByUserTx(tx, schoolID, borrowerID)
		if err != nil {
			return err
		}
		if err := debitAccountTx(tx, schoolID, accountID, amount, 0, now); err != nil {
			return err
		}
		if err := appendLedgerTx(tx, schoolID, accountID, "", amount, ledger.EntryLoanRepayment, "loan repayment", now); err != nil {
			return err
		}

		paymentID, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate payment id: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO loan_payments (id, loan_id, amount, created_at) VALUES (?, ?, ?, ?)`,
			paymentID, loanID, int64(amount), toMillis(now),
		)
		if err != nil {
			return fmt.Errorf("record loan payment: %w", err)
		}

		remaining := record.Outstanding - amount
		status := record.Status
		if remaining == 0 {
			status = loan.StatusPaidOff
		}
		_, err = tx.Exec(
			`UPDATE loans SET outstanding = ?, status = ? WHERE school_id = ? AND id = ?`,
			int64(remaining), string(status), schoolID, loanID,
		)
		if err != nil {
			return fmt.Errorf("update loan balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.Loan{}, err
	}
	return s.GetLoan(ctx, schoolID, loanID)
}

// ListLoanPayments returns a loan's repayment history, oldest first.
func (s *Store) ListLoanPayments(ctx context.Context, schoolID, loanID string) ([]storage.LoanPayment, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT p.id, p.loan_id, p.amount, p.created_at
		   FROM loan_payments p
		   JOIN loans l ON l.id = p.loan_id
		  WHERE l.school_id = ? AND p.loan_id = ?
		  ORDER BY p.created_at ASC, p.id ASC`,
		schoolID, loanID,
	)
	if err != nil {
		return nil, fmt.Errorf("list loan payments: %w", err)
	}
	defer rows.Close()

	var payments []storage.LoanPayment
	for rows.Next() {
		var payment storage.LoanPayment
		var amount, createdAt int64
		if err := rows.Scan(&payment.ID, &payment.LoanID, &amount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan loan payment: %w", err)
		}
		payment.Amount = money.Cents(amount)
		payment.CreatedAt = fromMillis(createdAt)
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loan payments: %w", err)
	}
	return payments, nil
}

const selectLoanSQL = `SELECT id, school_id, borrower_id, principal, term_months, rate_percent, status,
       outstanding, payment, due_date, reviewer_id, reviewed_at, denial_reason, created_at
  FROM loans`

func scanLoan(row rowScanner) (storage.Loan, error) {
	var record storage.Loan
	var principal, outstanding, payment, createdAt int64
	var status string
	var dueDate, reviewedAt sql.NullInt64
	var reviewerID, denialReason sql.NullString
	err := row.Scan(
		&record.ID,
		&record.SchoolID,
		&record.BorrowerID,
		&principal,
		&record.TermMonths,
		&record.RatePercent,
		&status,
		&outstanding,
		&payment,
		&dueDate,
		&reviewerID,
		&reviewedAt,
		&denialReason,
		&createdAt,
	)
	if err != nil {
		return storage.Loan{}, err
	}
	record.Principal = money.Cents(principal)
	record.Outstanding = money.Cents(outstanding)
	record.Payment = money.Cents(payment)
	record.Status = loan.Status(status)
	record.DueDate = scanNullMillis(dueDate)
	record.ReviewerID = scanNullString(reviewerID)
	record.ReviewedAt = scanNullMillis(reviewedAt)
	record.DenialReason = scanNullString(denialReason)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

func collectLoans(rows *sql.Rows) ([]storage.Loan, error) {
	defer rows.Close()
	var records []storage.Loan
	for rows.Next() {
		record, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", err)
	}
	return records, nil
}

// loanForReviewTx loads a loan and rejects review when it is no longer
// pending.
func loanForReviewTx(tx *sql.Tx, schoolID, loanID string) (storage.Loan, error) {
	row := tx.QueryRow(
		selectLoanSQL+` WHERE school_id = ? AND id = ?`,
		schoolID, loanID,
	)
	record, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Loan{}, storage.ErrNotFound
		}
		return storage.Loan{}, fmt.Errorf("load loan: %w", err)
	}
	if record.Status != loan.StatusPending {
		return storage.Loan{}, apperrors.WithMetadata(apperrors.CodeLoanAlreadyResolved,
			"loan has already been resolved",
			map[string]string{"status": string(record.Status)})
	}
	return record, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edutown/economy/internal/economy/domain/ledger"
	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/domain/review"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
)

// CreateTransfer records one pending transfer intent. No money moves until a
// teacher approves it.
func (s *Store) CreateTransfer(ctx context.Context, transfer storage.PendingTransfer) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	transferID := strings.TrimSpace(transfer.ID)
	schoolID := strings.TrimSpace(transfer.SchoolID)
	if transferID == "" {
		return fmt.Errorf("transfer id is required")
	}
	if schoolID == "" {
		return fmt.Errorf("school id is required")
	}
	if transfer.Amount <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	createdAt := transfer.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO pending_transfers (
		   id, school_id, from_user_id, to_user_id, amount, description, status, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		transferID,
		schoolID,
		transfer.FromUserID,
		transfer.ToUserID,
		int64(transfer.Amount),
		transfer.Description,
		string(review.StatusPending),
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create transfer: %w", err)
	}
	return nil
}

// GetTransfer returns one pending transfer by id.
func (s *Store) GetTransfer(ctx context.Context, schoolID, transferID string) (storage.PendingTransfer, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PendingTransfer{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		selectTransferSQL+` WHERE school_id = ? AND id = ?`,
		schoolID, transferID,
	)
	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PendingTransfer{}, storage.ErrNotFound
		}
		return storage.PendingTransfer{}, fmt.Errorf("get transfer: %w", err)
	}
	return transfer, nil
}

// ListTransfersByStatus returns a school's transfers in one review state,
// oldest first.
func (s *Store) ListTransfersByStatus(ctx context.Context, schoolID string, status review.Status) ([]storage.PendingTransfer, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		selectTransferSQL+` WHERE school_id = ? AND status = ? ORDER BY created_at ASC, id ASC`,
		schoolID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list transfers by status: %w", err)
	}
	return collectTransfers(rows)
}

// ListTransfersByUser returns transfers the user sent or received, newest
// first.
func (s *Store) ListTransfersByUser(ctx context.Context, schoolID, userID string) ([]storage.PendingTransfer, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		selectTransferSQL+` WHERE school_id = ? AND (from_user_id = ? OR to_user_id = ?) ORDER BY created_at DESC, id DESC`,
		schoolID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transfers by user: %w", err)
	}
	return collectTransfers(rows)
}

// ApproveTransfer settles one pending transfer: it re-reads status and sender
// funds inside the transaction, moves the money, and records the ledger
// entry. Funds are checked at approval time, not submission time.
func (s *Store) ApproveTransfer(ctx context.Context, schoolID, transferID, reviewerID string) (storage.PendingTransfer, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PendingTransfer{}, err
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		transfer, err := transferForReviewTx(tx, schoolID, transferID)
		if err != nil {
			return err
		}

		fromAccountID, err := accountIDByUserTx(tx, schoolID, transfer.FromUserID)
		if err != nil {
			return err
		}
		toAccountID, err := accountIDByUserTx(tx, schoolID, transfer.ToUserID)
		if err != nil {
			return err
		}
		if err := debitAccountTx(tx, schoolID, fromAccountID, transfer.Amount, 0, now); err != nil {
			return err
		}
		if err := creditAccountTx(tx, schoolID, toAccountID, transfer.Amount, now); err != nil {
			return err
		}
		if err := appendLedgerTx(tx, schoolID, fromAccountID, toAccountID, transfer.Amount, ledger.EntryTransfer, transfer.Description, now); err != nil {
			return err
		}
		return resolveTransferTx(tx, schoolID, transferID, review.StatusApproved, reviewerID, "", now)
	})
	if err != nil {
		return storage.PendingTransfer{}, err
	}
	return s.GetTransfer(ctx, schoolID, transferID)
}

// DenyTransfer resolves one pending transfer without moving money.
func (s *Store) DenyTransfer(ctx context.Context, schoolID, transferID, reviewerID, reason string) (storage.PendingTransfer, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PendingTransfer{}, err
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := transferForReviewTx(tx, schoolID, transferID); err != nil {
			return err
		}
		return resolveTransferTx(tx, schoolID, transferID, review.StatusDenied, reviewerID, reason, now)
	})
	if err != nil {
		return storage.PendingTransfer{}, err
	}
	return s.GetTransfer(ctx, schoolID, transferID)
}

const selectTransferSQL = `SELECT id, school_id, from_user_id, to_user_id, amount, description, status,
       reviewer_id, reviewed_at, denial_reason, created_at
  FROM pending_transfers`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (storage.PendingTransfer, error) {
	var transfer storage.PendingTransfer
	var amount, createdAt int64
	var status string
	var reviewerID, denialReason sql.NullString
	var reviewedAt sql.NullInt64
	err := row.Scan(
		&transfer.ID,
		&transfer.SchoolID,
		&transfer.FromUserID,
		&transfer.ToUserID,
		&amount,
		&transfer.Description,
		&status,
		&reviewerID,
		&reviewedAt,
		&denialReason,
		&createdAt,
	)
	if err != nil {
		return storage.PendingTransfer{}, err
	}
	transfer.Amount = money.Cents(amount)
	transfer.Status = review.Status(status)
	transfer.ReviewerID = scanNullString(reviewerID)
	transfer.ReviewedAt = scanNullMillis(reviewedAt)
	transfer.DenialReason = scanNullString(denialReason)
	transfer.CreatedAt = fromMillis(createdAt)
	return transfer, nil
}

func collectTransfers(rows *sql.Rows) ([]storage.PendingTransfer, error) {
	defer rows.Close()
	var transfers []storage.PendingTransfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return transfers, nil
}

// transferForReviewTx loads a transfer and rejects review when it has already
// been resolved.
func transferForReviewTx(tx *sql.Tx, schoolID, transferID string) (storage.PendingTransfer, error) {
	row := tx.QueryRow(
		selectTransferSQL+` WHERE school_id = ? AND id = ?`,
		schoolID, transferID,
	)
	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PendingTransfer{}, storage.ErrNotFound
		}
		return storage.PendingTransfer{}, fmt.Errorf("load transfer: %w", err)
	}
	if transfer.Status.IsTerminal() {
		return storage.PendingTransfer{}, apperrors.WithMetadata(apperrors.CodeTransferAlreadyResolved,
			"transfer has already been resolved",
			map[string]string{"status": string(transfer.Status)})
	}
	return transfer, nil
}

func resolveTransferTx(tx *sql.Tx, schoolID, transferID string, status review.Status, reviewerID, reason string, now time.Time) error {
	_, err := tx.Exec(
		`UPDATE pending_transfers
		    SET status = ?, reviewer_id = ?, reviewed_at = ?, denial_reason = ?
		  WHERE school_id = ? AND id = ?`,
		string(status),
		nullString(reviewerID),
		toMillis(now),
		nullString(reason),
		schoolID,
		transferID,
	)
	if err != nil {
		return fmt.Errorf("resolve transfer: %w", err)
	}
	return nil
}

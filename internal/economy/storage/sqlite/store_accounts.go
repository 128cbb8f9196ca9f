package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/edutown/economy/internal/economy/domain/ledger"
	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
)

// CreateAccount inserts one account record.
func (s *Store) CreateAccount(ctx context.Context, account storage.Account) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	accountID := strings.TrimSpace(account.ID)
	schoolID := strings.TrimSpace(account.SchoolID)
	userID := strings.TrimSpace(account.UserID)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if schoolID == "" {
		return fmt.Errorf("school id is required")
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO accounts (id, school_id, user_id, balance, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			accountID,
			schoolID,
			userID,
			int64(account.Balance),
			toMillis(createdAt),
			toMillis(createdAt),
		)
		if err != nil {
			return err
		}
		// A non-zero opening balance is logged so the ledger reconciles.
		if account.Balance > 0 {
			return appendLedgerTx(tx, schoolID, "", accountID, account.Balance, ledger.EntryDeposit, "opening balance", createdAt)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetAccountByUser returns the account owned by one user.
func (s *Store) GetAccountByUser(ctx context.Context, schoolID, userID string) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, school_id, user_id, balance, created_at, updated_at
		   FROM accounts
		  WHERE school_id = ? AND user_id = ?`,
		schoolID, userID,
	)
	var account storage.Account
	var balance, createdAt, updatedAt int64
	err := row.Scan(&account.ID, &account.SchoolID, &account.UserID, &balance, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}
	account.Balance = money.Cents(balance)
	account.CreatedAt = fromMillis(createdAt)
	account.UpdatedAt = fromMillis(updatedAt)
	return account, nil
}

// ListLedgerEntries returns one page of an account's transaction records,
// oldest first, keyed by (created_at, id) so the order is chronological even
// though entry ids are random.
func (s *Store) ListLedgerEntries(ctx context.Context, schoolID, accountID string, pageSize int, pageToken string) (storage.LedgerPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.LedgerPage{}, err
	}
	if pageSize <= 0 {
		return storage.LedgerPage{}, fmt.Errorf("page size must be greater than zero")
	}
	afterMillis, afterID, err := parseLedgerPageToken(pageToken)
	if err != nil {
		return storage.LedgerPage{}, err
	}

	page := storage.LedgerPage{
		Entries: make([]storage.LedgerEntry, 0, pageSize),
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, school_id, from_account_id, to_account_id, amount, entry_type, description, created_at
		   FROM ledger_entries
		  WHERE school_id = ?
		    AND (from_account_id = ? OR to_account_id = ?)
		    AND (created_at > ? OR (created_at = ? AND id > ?))
		  ORDER BY created_at ASC, id ASC
		  LIMIT ?`,
		schoolID, accountID, accountID, afterMillis, afterMillis, afterID, pageSize+1,
	)
	if err != nil {
		return storage.LedgerPage{}, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry storage.LedgerEntry
		var fromAccount, toAccount sql.NullString
		var amount, createdAt int64
		var entryType string
		if err := rows.Scan(
			&entry.ID,
			&entry.SchoolID,
			&fromAccount,
			&toAccount,
			&amount,
			&entryType,
			&entry.Description,
			&createdAt,
		); err != nil {
			return storage.LedgerPage{}, fmt.Errorf("list ledger entries: %w", err)
		}
		entry.FromAccountID = scanNullString(fromAccount)
		entry.ToAccountID = scanNullString(toAccount)
		entry.Amount = money.Cents(amount)
		entry.Type = ledger.EntryType(entryType)
		entry.CreatedAt = fromMillis(createdAt)
		page.Entries = append(page.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return storage.LedgerPage{}, fmt.Errorf("list ledger entries: %w", err)
	}
	if len(page.Entries) > pageSize {
		last := page.Entries[pageSize-1]
		page.NextPageToken = strconv.FormatInt(toMillis(last.CreatedAt), 10) + ":" + last.ID
		page.Entries = page.Entries[:pageSize]
	}
	return page, nil
}

// parseLedgerPageToken splits an opaque "millis:id" cursor. An empty token
// starts from the beginning.
func parseLedgerPageToken(token string) (int64, string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, "", nil
	}
	millisPart, id, ok := strings.Cut(token, ":")
	if !ok {
		return 0, "", apperrors.New(apperrors.CodeFieldRequired, "malformed page token")
	}
	millis, err := strconv.ParseInt(millisPart, 10, 64)
	if err != nil {
		return 0, "", apperrors.New(apperrors.CodeFieldRequired, "malformed page token")
	}
	return millis, id, nil
}

// SumLedgerForAccount returns the signed sum of all entries referencing the
// account: credits count positive, debits negative.
func (s *Store) SumLedgerForAccount(ctx context.Context, schoolID, accountID string) (money.Cents, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	var sum int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(CASE
		          WHEN to_account_id = ? THEN amount
		          ELSE -amount
		        END), 0)
		   FROM ledger_entries
		  WHERE school_id = ?
		    AND (from_account_id = ? OR to_account_id = ?)`,
		accountID, schoolID, accountID, accountID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger for account: %w", err)
	}
	return money.Cents(sum), nil
}

// Deposit credits a user's account with a teacher-granted amount.
func (s *Store) Deposit(ctx context.Context, schoolID, userID string, amount money.Cents, description string) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}
	if amount <= 0 {
		return storage.Account{}, fmt.Errorf("deposit amount must be positive")
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		accountID, err := accountIDByUserTx(tx, schoolID, userID)
		if err != nil {
			return err
		}
		if err := creditAccountTx(tx, schoolID, accountID, amount, now); err != nil {
			return err
		}
		return appendLedgerTx(tx, schoolID, "", accountID, amount, ledger.EntryDeposit, description, now)
	})
	if err != nil {
		return storage.Account{}, err
	}
	return s.GetAccountByUser(ctx, schoolID, userID)
}

// Fine debits a user's account with no balance floor; fines may push the
// balance negative.
func (s *Store) Fine(ctx context.Context, schoolID, userID string, amount money.Cents, description string) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}
	if amount <= 0 {
		return storage.Account{}, fmt.Errorf("fine amount must be positive")
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		accountID, err := accountIDByUserTx(tx, schoolID, userID)
		if err != nil {
			return err
		}
		if err := debitAccountTx(tx, schoolID, accountID, amount, noFloor, now); err != nil {
			return err
		}
		return appendLedgerTx(tx, schoolID, accountID, "", amount, ledger.EntryFine, description, now)
	})
	if err != nil {
		return storage.Account{}, err
	}
	return s.GetAccountByUser(ctx, schoolID, userID)
}

// Package sqlite provides the SQLite-backed economy storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/edutown/economy/internal/platform/id"
	sqlitemigrate "github.com/edutown/economy/internal/platform/storage/sqlitemigrate"

	"github.com/edutown/economy/internal/economy/domain/ledger"
	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/storage"
	"github.com/edutown/economy/internal/economy/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	apperrors "github.com/edutown/economy/internal/platform/errors"
)

// Store persists classroom-economy state in SQLite.
//
// Every multi-step workflow runs inside one immediate transaction; SQLite
// serializes writers, so the in-transaction re-read of balances and statuses
// is the authoritative guard against double-spend and double-sale.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite economy store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	// busy_timeout makes a racing writer block on the lock instead of failing
	// with SQLITE_BUSY, so the loser observes the committed state.
	dsn := cleanPath + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// withTx runs fn inside one transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// noFloor disables the balance floor for debits that may overdraw (fines).
const noFloor = money.Cents(-1 << 60)

// accountBalanceTx reads an account balance inside the caller's transaction.
func accountBalanceTx(tx *sql.Tx, schoolID, accountID string) (money.Cents, error) {
	var balance int64
	err := tx.QueryRow(
		`SELECT balance FROM accounts WHERE school_id = ? AND id = ?`,
		schoolID, accountID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("read account balance: %w", err)
	}
	return money.Cents(balance), nil
}

// creditAccountTx adds amount to the account balance. The caller must append
// the matching ledger entry in the same transaction.
func creditAccountTx(tx *sql.Tx, schoolID, accountID string, amount money.Cents, now time.Time) error {
	result, err := tx.Exec(
		`UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE school_id = ? AND id = ?`,
		int64(amount), toMillis(now), schoolID, accountID,
	)
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// debitAccountTx subtracts amount from the account balance, failing with
// InsufficientFunds when the result would fall below floor. The caller must
// append the matching ledger entry in the same transaction.
func debitAccountTx(tx *sql.Tx, schoolID, accountID string, amount money.Cents, floor money.Cents, now time.Time) error {
	balance, err := accountBalanceTx(tx, schoolID, accountID)
	if err != nil {
		return err
	}
	if balance-amount < floor {
		return apperrors.WithMetadata(apperrors.CodeInsufficientFunds,
			"account balance is insufficient",
			map[string]string{"balance": balance.String()})
	}
	_, err = tx.Exec(
		`UPDATE accounts SET balance = balance - ?, updated_at = ? WHERE school_id = ? AND id = ?`,
		int64(amount), toMillis(now), schoolID, accountID,
	)
	if err != nil {
		return fmt.Errorf("debit account: %w", err)
	}
	return nil
}

// appendLedgerTx inserts one immutable transaction record.
func appendLedgerTx(tx *sql.Tx, schoolID, fromAccountID, toAccountID string, amount money.Cents, entryType ledger.EntryType, description string, now time.Time) error {
	if fromAccountID == "" && toAccountID == "" {
		return fmt.Errorf("ledger entry requires a source or destination account")
	}
	if amount <= 0 {
		return fmt.Errorf("ledger entry amount must be positive")
	}
	entryID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate ledger entry id: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO ledger_entries (
		   id, school_id, from_account_id, to_account_id, amount, entry_type, description, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entryID,
		schoolID,
		nullString(fromAccountID),
		nullString(toAccountID),
		int64(amount),
		string(entryType),
		description,
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// accountIDByUserTx resolves a user's account id inside a transaction.
func accountIDByUserTx(tx *sql.Tx, schoolID, userID string) (string, error) {
	var accountID string
	err := tx.QueryRow(
		`SELECT id FROM accounts WHERE school_id = ? AND user_id = ?`,
		schoolID, userID,
	).Scan(&accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("resolve account for user: %w", err)
	}
	return accountID, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullMillis(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return toMillis(value)
}

func scanNullString(value sql.NullString) string {
	if !value.Valid {
		return ""
	}
	return value.String
}

func scanNullMillis(value sql.NullInt64) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	return fromMillis(value.Int64)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)

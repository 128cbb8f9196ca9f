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
	"github.com/edutown/economy/internal/economy/domain/treasury"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/id"
)

// EnsureTreasury creates the town-class treasury when missing and returns it.
func (s *Store) EnsureTreasury(ctx context.Context, schoolID, townClass string) (storage.Treasury, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Treasury{}, err
	}
	schoolID = strings.TrimSpace(schoolID)
	townClass = strings.TrimSpace(townClass)
	if schoolID == "" || townClass == "" {
		return storage.Treasury{}, fmt.Errorf("school id and town class are required")
	}

	now := s.now()
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO treasuries (school_id, town_class, balance, tax_enabled, tax_rate_percent, created_at, updated_at)
		 VALUES (?, ?, 0, 0, 0, ?, ?)
		 ON CONFLICT (school_id, town_class) DO NOTHING`,
		schoolID, townClass, toMillis(now), toMillis(now),
	)
	if err != nil {
		return storage.Treasury{}, fmt.Errorf("ensure treasury: %w", err)
	}
	return s.GetTreasury(ctx, schoolID, townClass)
}

// GetTreasury returns one town-class treasury.
func (s *Store) GetTreasury(ctx context.Context, schoolID, townClass string) (storage.Treasury, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Treasury{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT school_id, town_class, balance, tax_enabled, tax_rate_percent, created_at, updated_at
		   FROM treasuries
		  WHERE school_id = ? AND town_class = ?`,
		schoolID, townClass,
	)
	var t storage.Treasury
	var balance, createdAt, updatedAt int64
	var taxEnabled int
	err := row.Scan(&t.SchoolID, &t.TownClass, &balance, &taxEnabled, &t.TaxRatePercent, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Treasury{}, storage.ErrNotFound
		}
		return storage.Treasury{}, fmt.Errorf("get treasury: %w", err)
	}
	t.Balance = money.Cents(balance)
	t.TaxEnabled = taxEnabled != 0
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return t, nil
}

// SetTaxEnabled toggles withholding for future salary batches.
func (s *Store) SetTaxEnabled(ctx context.Context, schoolID, townClass string, enabled bool) (storage.Treasury, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Treasury{}, err
	}

	flag := 0
	if enabled {
		flag = 1
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE treasuries SET tax_enabled = ?, updated_at = ? WHERE school_id = ? AND town_class = ?`,
		flag, toMillis(s.now()), schoolID, townClass,
	)
	if err != nil {
		return storage.Treasury{}, fmt.Errorf("set tax enabled: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Treasury{}, fmt.Errorf("set tax enabled: %w", err)
	}
	if affected == 0 {
		return storage.Treasury{}, storage.ErrNotFound
	}
	return s.GetTreasury(ctx, schoolID, townClass)
}

// DepositTreasury credits the treasury and records the signed entry.
func (s *Store) DepositTreasury(ctx context.Context, schoolID, townClass string, amount money.Cents, description string) (storage.Treasury, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Treasury{}, err
	}
	if amount <= 0 {
		return storage.Treasury{}, apperrors.New(apperrors.CodeAmountNotPositive, "deposit amount must be positive")
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := adjustTreasuryTx(tx, schoolID, townClass, amount, now); err != nil {
			return err
		}
		return appendTreasuryEntryTx(tx, schoolID, townClass, amount, treasury.EntryDeposit, description, now)
	})
	if err != nil {
		return storage.Treasury{}, err
	}
	return s.GetTreasury(ctx, schoolID, townClass)
}

// WithdrawTreasury debits the treasury, rejecting overdrafts.
func (s *Store) WithdrawTreasury(ctx context.Context, schoolID, townClass string, amount money.Cents, description string) (storage.Treasury, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Treasury{}, err
	}
	if amount <= 0 {
		return storage.Treasury{}, apperrors.New(apperrors.CodeAmountNotPositive, "withdrawal amount must be positive")
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		balance, err := treasuryBalanceTx(tx, schoolID, townClass)
		if err != nil {
			return err
		}
		if balance < amount {
			return apperrors.WithMetadata(apperrors.CodeInsufficientTreasuryFunds,
				"treasury balance is insufficient",
				map[string]string{"balance": balance.String()})
		}
		if err := adjustTreasuryTx(tx, schoolID, townClass, -amount, now); err != nil {
			return err
		}
		return appendTreasuryEntryTx(tx, schoolID, townClass, -amount, treasury.EntryWithdrawal, description, now)
	})
	if err != nil {
		return storage.Treasury{}, err
	}
	return s.GetTreasury(ctx, schoolID, townClass)
}

// SetTaxBrackets replaces the town's bracket table atomically. The brackets
// are validated before any row changes.
func (s *Store) SetTaxBrackets(ctx context.Context, schoolID, townClass string, brackets []treasury.Bracket) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := treasury.ValidateBrackets(brackets); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`DELETE FROM tax_brackets WHERE school_id = ? AND town_class = ?`,
			schoolID, townClass,
		)
		if err != nil {
			return fmt.Errorf("clear tax brackets: %w", err)
		}
		for _, bracket := range brackets {
			var maxSalary any
			if !bracket.Unbounded() {
				maxSalary = int64(bracket.MaxSalary)
			}
			_, err := tx.Exec(
				`INSERT INTO tax_brackets (school_id, town_class, min_salary, max_salary, rate_percent)
				 VALUES (?, ?, ?, ?, ?)`,
				schoolID, townClass, int64(bracket.MinSalary), maxSalary, bracket.Rate,
			)
			if err != nil {
				return fmt.Errorf("insert tax bracket: %w", err)
			}
		}
		return nil
	})
}

// ListTaxBrackets returns the town's bracket table ordered by minimum salary.
func (s *Store) ListTaxBrackets(ctx context.Context, schoolID, townClass string) ([]treasury.Bracket, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT min_salary, max_salary, rate_percent
		   FROM tax_brackets
		  WHERE school_id = ? AND town_class = ?
		  ORDER BY min_salary ASC`,
		schoolID, townClass,
	)
	if err != nil {
		return nil, fmt.Errorf("list tax brackets: %w", err)
	}
	defer rows.Close()

	var brackets []treasury.Bracket
	for rows.Next() {
		var bracket treasury.Bracket
		var minSalary int64
		var maxSalary sql.NullInt64
		if err := rows.Scan(&minSalary, &maxSalary, &bracket.Rate); err != nil {
			return nil, fmt.Errorf("scan tax bracket: %w", err)
		}
		bracket.MinSalary = money.Cents(minSalary)
		if maxSalary.Valid {
			bracket.MaxSalary = money.Cents(maxSalary.Int64)
		}
		brackets = append(brackets, bracket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tax brackets: %w", err)
	}
	return brackets, nil
}

// ListTreasuryEntries returns the town's treasury transactions, newest first.
func (s *Store) ListTreasuryEntries(ctx context.Context, schoolID, townClass string) ([]storage.TreasuryEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, school_id, town_class, amount, entry_type, description, created_at
		   FROM treasury_entries
		  WHERE school_id = ? AND town_class = ?
		  ORDER BY created_at DESC, id DESC`,
		schoolID, townClass,
	)
	if err != nil {
		return nil, fmt.Errorf("list treasury entries: %w", err)
	}
	defer rows.Close()

	var entries []storage.TreasuryEntry
	for rows.Next() {
		var entry storage.TreasuryEntry
		var amount, createdAt int64
		var entryType string
		if err := rows.Scan(&entry.ID, &entry.SchoolID, &entry.TownClass, &amount, &entryType, &entry.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan treasury entry: %w", err)
		}
		entry.Amount = money.Cents(amount)
		entry.Type = treasury.EntryType(entryType)
		entry.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate treasury entries: %w", err)
	}
	return entries, nil
}

// ListTaxWithholdings returns the town's withholding audit records, newest
// first.
func (s *Store) ListTaxWithholdings(ctx context.Context, schoolID, townClass string) ([]storage.TaxWithholding, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, school_id, town_class, user_id, gross, tax, net, rate_percent, created_at
		   FROM tax_withholdings
		  WHERE school_id = ? AND town_class = ?
		  ORDER BY created_at DESC, id DESC`,
		schoolID, townClass,
	)
	if err != nil {
		return nil, fmt.Errorf("list tax withholdings: %w", err)
	}
	defer rows.Close()

	var records []storage.TaxWithholding
	for rows.Next() {
		var record storage.TaxWithholding
		var gross, tax, net, createdAt int64
		if err := rows.Scan(&record.ID, &record.SchoolID, &record.TownClass, &record.UserID, &gross, &tax, &net, &record.RatePercent, &createdAt); err != nil {
			return nil, fmt.Errorf("scan tax withholding: %w", err)
		}
		record.Gross = money.Cents(gross)
		record.Tax = money.Cents(tax)
		record.Net = money.Cents(net)
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tax withholdings: %w", err)
	}
	return records, nil
}

// PayEmployedSalaries runs the salary batch for every employed student in the
// town class in one transaction. Each gross salary is split into tax and net
// by the bracket table; students are credited net, the treasury keeps the
// withheld tax, and the whole batch aborts before any mutation when the
// treasury cannot cover the total net payout.
func (s *Store) PayEmployedSalaries(ctx context.Context, schoolID, townClass string) (storage.SalaryBatchResult, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SalaryBatchResult{}, err
	}

	result := storage.SalaryBatchResult{TownClass: townClass}
	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := treasurySettingsTx(tx, schoolID, townClass)
		if err != nil {
			return err
		}
		brackets, err := taxBracketsTx(tx, schoolID, townClass)
		if err != nil {
			return err
		}
		students, err := employedStudentsTx(tx, schoolID, townClass)
		if err != nil {
			return err
		}
		if len(students) == 0 {
			return nil
		}

		withholdings := make([]treasury.Withholding, len(students))
		var grossTotal, taxTotal, netTotal money.Cents
		for i, student := range students {
			w := treasury.Withhold(brackets, student.JobSalary, t.TaxEnabled)
			withholdings[i] = w
			grossTotal += w.Gross
			taxTotal += w.Tax
			netTotal += w.Net
		}
		if t.Balance < netTotal {
			return apperrors.WithMetadata(apperrors.CodeInsufficientTreasuryFunds,
				"treasury cannot cover the salary batch",
				map[string]string{
					"balance":  t.Balance.String(),
					"required": netTotal.String(),
				})
		}

		for i, student := range students {
			w := withholdings[i]
			accountID, err := accountIDByUserTx(tx, schoolID, student.ID)
			if err != nil {
				return err
			}
			if w.Net > 0 {
				if err := creditAccountTx(tx, schoolID, accountID, w.Net, now); err != nil {
					return err
				}
				if err := appendLedgerTx(tx, schoolID, "", accountID, w.Net, ledger.EntrySalary, "salary: "+student.JobTitle, now); err != nil {
					return err
				}
			}
			if w.Tax > 0 {
				if err := insertWithholdingTx(tx, schoolID, townClass, student.ID, w, now); err != nil {
					return err
				}
			}
		}

		if err := adjustTreasuryTx(tx, schoolID, townClass, -netTotal, now); err != nil {
			return err
		}
		if grossTotal > 0 {
			if err := appendTreasuryEntryTx(tx, schoolID, townClass, -grossTotal, treasury.EntrySalaryPayment, "salary batch", now); err != nil {
				return err
			}
		}
		if taxTotal > 0 {
			if err := appendTreasuryEntryTx(tx, schoolID, townClass, taxTotal, treasury.EntryTaxCollection, "salary batch withholding", now); err != nil {
				return err
			}
		}

		result.PaidCount = len(students)
		result.GrossTotal = grossTotal
		result.TaxTotal = taxTotal
		result.NetTotal = netTotal
		return nil
	})
	if err != nil {
		return storage.SalaryBatchResult{}, err
	}
	return result, nil
}

// PayBasicSalary pays a flat tax-exempt amount to every unemployed student
// in the town class, in one transaction.
func (s *Store) PayBasicSalary(ctx context.Context, schoolID, townClass string, amount money.Cents) (storage.SalaryBatchResult, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SalaryBatchResult{}, err
	}
	if amount <= 0 {
		return storage.SalaryBatchResult{}, apperrors.New(apperrors.CodeAmountNotPositive, "basic salary must be positive")
	}

	result := storage.SalaryBatchResult{TownClass: townClass}
	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := treasurySettingsTx(tx, schoolID, townClass)
		if err != nil {
			return err
		}
		students, err := unemployedStudentsTx(tx, schoolID, townClass)
		if err != nil {
			return err
		}
		if len(students) == 0 {
			return nil
		}

		total := amount * money.Cents(len(students))
		if t.Balance < total {
			return apperrors.WithMetadata(apperrors.CodeInsufficientTreasuryFunds,
				"treasury cannot cover the basic salary batch",
				map[string]string{
					"balance":  t.Balance.String(),
					"required": total.String(),
				})
		}

		for _, student := range students {
			accountID, err := accountIDByUserTx(tx, schoolID, student.ID)
			if err != nil {
				return err
			}
			if err := creditAccountTx(tx, schoolID, accountID, amount, now); err != nil {
				return err
			}
			if err := appendLedgerTx(tx, schoolID, "", accountID, amount, ledger.EntrySalary, "basic salary", now); err != nil {
				return err
			}
		}

		if err := adjustTreasuryTx(tx, schoolID, townClass, -total, now); err != nil {
			return err
		}
		if err := appendTreasuryEntryTx(tx, schoolID, townClass, -total, treasury.EntrySalaryPayment, "basic salary batch", now); err != nil {
			return err
		}

		result.PaidCount = len(students)
		result.GrossTotal = total
		result.NetTotal = total
		return nil
	})
	if err != nil {
		return storage.SalaryBatchResult{}, err
	}
	return result, nil
}

func treasuryBalanceTx(tx *sql.Tx, schoolID, townClass string) (money.Cents, error) {
	var balance int64
	err := tx.QueryRow(
		`SELECT balance FROM treasuries WHERE school_id = ? AND town_class = ?`,
		schoolID, townClass,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("read treasury balance: %w", err)
	}
	return money.Cents(balance), nil
}

func treasurySettingsTx(tx *sql.Tx, schoolID, townClass string) (storage.Treasury, error) {
	row := tx.QueryRow(
		`SELECT school_id, town_class, balance, tax_enabled, tax_rate_percent, created_at, updated_at
		   FROM treasuries
		  WHERE school_id = ? AND town_class = ?`,
		schoolID, townClass,
	)
	var t storage.Treasury
	var balance, createdAt, updatedAt int64
	var taxEnabled int
	err := row.Scan(&t.SchoolID, &t.TownClass, &balance, &taxEnabled, &t.TaxRatePercent, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Treasury{}, storage.ErrNotFound
		}
		return storage.Treasury{}, fmt.Errorf("read treasury: %w", err)
	}
	t.Balance = money.Cents(balance)
	t.TaxEnabled = taxEnabled != 0
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return t, nil
}

// ensureTreasuryTx creates the town-class treasury row when missing so later
// adjustments in the same transaction have a row to update.
func ensureTreasuryTx(tx *sql.Tx, schoolID, townClass string, now time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO treasuries (school_id, town_class, balance, tax_enabled, tax_rate_percent, created_at, updated_at)
		 VALUES (?, ?, 0, 0, 0, ?, ?)
		 ON CONFLICT (school_id, town_class) DO NOTHING`,
		schoolID, townClass, toMillis(now), toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("ensure treasury: %w", err)
	}
	return nil
}

// adjustTreasuryTx applies a signed delta to the treasury balance.
func adjustTreasuryTx(tx *sql.Tx, schoolID, townClass string, delta money.Cents, now time.Time) error {
	result, err := tx.Exec(
		`UPDATE treasuries SET balance = balance + ?, updated_at = ? WHERE school_id = ? AND town_class = ?`,
		int64(delta), toMillis(now), schoolID, townClass,
	)
	if err != nil {
		return fmt.Errorf("adjust treasury: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust treasury: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// appendTreasuryEntryTx inserts one signed treasury transaction record.
func appendTreasuryEntryTx(tx *sql.Tx, schoolID, townClass string, amount money.Cents, entryType treasury.EntryType, description string, now time.Time) error {
	if amount == 0 {
		return fmt.Errorf("treasury entry amount must be non-zero")
	}
	entryID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate treasury entry id: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO treasury_entries (id, school_id, town_class, amount, entry_type, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entryID, schoolID, townClass, int64(amount), string(entryType), description, toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("append treasury entry: %w", err)
	}
	return nil
}

func insertWithholdingTx(tx *sql.Tx, schoolID, townClass, userID string, w treasury.Withholding, now time.Time) error {
	recordID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate withholding id: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO tax_withholdings (id, school_id, town_class, user_id, gross, tax, net, rate_percent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recordID, schoolID, townClass, userID,
		int64(w.Gross), int64(w.Tax), int64(w.Net), w.Rate, toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("record tax withholding: %w", err)
	}
	return nil
}

func taxBracketsTx(tx *sql.Tx, schoolID, townClass string) ([]treasury.Bracket, error) {
	rows, err := tx.Query(
		`SELECT min_salary, max_salary, rate_percent
		   FROM tax_brackets
		  WHERE school_id = ? AND town_class = ?
		  ORDER BY min_salary ASC`,
		schoolID, townClass,
	)
	if err != nil {
		return nil, fmt.Errorf("read tax brackets: %w", err)
	}
	defer rows.Close()

	var brackets []treasury.Bracket
	for rows.Next() {
		var bracket treasury.Bracket
		var minSalary int64
		var maxSalary sql.NullInt64
		if err := rows.Scan(&minSalary, &maxSalary, &bracket.Rate); err != nil {
			return nil, fmt.Errorf("scan tax bracket: %w", err)
		}
		bracket.MinSalary = money.Cents(minSalary)
		if maxSalary.Valid {
			bracket.MaxSalary = money.Cents(maxSalary.Int64)
		}
		brackets = append(brackets, bracket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tax brackets: %w", err)
	}
	return brackets, nil
}

func employedStudentsTx(tx *sql.Tx, schoolID, townClass string) ([]storage.Student, error) {
	return studentsBySalaryTx(tx, schoolID, townClass, true)
}

func unemployedStudentsTx(tx *sql.Tx, schoolID, townClass string) ([]storage.Student, error) {
	return studentsBySalaryTx(tx, schoolID, townClass, false)
}

func studentsBySalaryTx(tx *sql.Tx, schoolID, townClass string, employed bool) ([]storage.Student, error) {
	clause := `job_salary IS NOT NULL AND job_salary > 0`
	if !employed {
		clause = `(job_salary IS NULL OR job_salary <= 0)`
	}
	rows, err := tx.Query(
		`SELECT id, school_id, town_class, display_name, job_title, job_salary, created_at
		   FROM students
		  WHERE school_id = ? AND town_class = ? AND `+clause+`
		  ORDER BY id ASC`,
		schoolID, townClass,
	)
	if err != nil {
		return nil, fmt.Errorf("list students for salary batch: %w", err)
	}
	defer rows.Close()

	var students []storage.Student
	for rows.Next() {
		student, err := scanStudent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

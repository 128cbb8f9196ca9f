package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// FactoryReset wipes the school's entire economic state in one transaction.
// There is no undo.
func (s *Store) FactoryReset(ctx context.Context, schoolID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	schoolID = strings.TrimSpace(schoolID)
	if schoolID == "" {
		return fmt.Errorf("school id is required")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		// Child tables first so foreign keys never dangle mid-wipe.
		statements := []string{
			`DELETE FROM land_purchase_requests WHERE school_id = ?`,
			`DELETE FROM land_parcels WHERE school_id = ?`,
			`DELETE FROM tax_withholdings WHERE school_id = ?`,
			`DELETE FROM tax_brackets WHERE school_id = ?`,
			`DELETE FROM treasury_entries WHERE school_id = ?`,
			`DELETE FROM treasuries WHERE school_id = ?`,
			`DELETE FROM loan_payments WHERE loan_id IN (SELECT id FROM loans WHERE school_id = ?)`,
			`DELETE FROM loans WHERE school_id = ?`,
			`DELETE FROM pending_transfers WHERE school_id = ?`,
			`DELETE FROM ledger_entries WHERE school_id = ?`,
			`DELETE FROM accounts WHERE school_id = ?`,
			`DELETE FROM students WHERE school_id = ?`,
		}
		for _, statement := range statements {
			if _, err := tx.Exec(statement, schoolID); err != nil {
				return fmt.Errorf("factory reset: %w", err)
			}
		}
		return nil
	})
}

// Package ledger defines the transaction record vocabulary of the account log.
package ledger

import "strings"

// EntryType labels one balance-affecting ledger record.
type EntryType string

const (
	EntryUnspecified      EntryType = ""
	EntryDeposit          EntryType = "deposit"
	EntryWithdrawal       EntryType = "withdrawal"
	EntryTransfer         EntryType = "transfer"
	EntryLoanDisbursement EntryType = "loan_disbursement"
	EntryLoanRepayment    EntryType = "loan_repayment"
	EntrySalary           EntryType = "salary"
	EntryFine             EntryType = "fine"
)

// NormalizeEntryType canonicalizes an entry type label.
func NormalizeEntryType(value string) (EntryType, bool) {
	switch EntryType(strings.ToLower(strings.TrimSpace(value))) {
	case EntryDeposit:
		return EntryDeposit, true
	case EntryWithdrawal:
		return EntryWithdrawal, true
	case EntryTransfer:
		return EntryTransfer, true
	case EntryLoanDisbursement:
		return EntryLoanDisbursement, true
	case EntryLoanRepayment:
		return EntryLoanRepayment, true
	case EntrySalary:
		return EntrySalary, true
	case EntryFine:
		return EntryFine, true
	default:
		return EntryUnspecified, false
	}
}

// IsValid reports whether the entry type is one of the known labels.
func (t EntryType) IsValid() bool {
	_, ok := NormalizeEntryType(string(t))
	return ok
}

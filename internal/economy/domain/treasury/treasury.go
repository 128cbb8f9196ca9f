// Package treasury holds town treasury entry types and the progressive tax
// bracket rules.
package treasury

import (
	"strings"

	apperrors "github.com/edutown/economy/internal/platform/errors"

	"github.com/edutown/economy/internal/economy/domain/money"
)

// EntryType labels one signed treasury transaction.
type EntryType string

const (
	EntryUnspecified    EntryType = ""
	EntryTaxCollection  EntryType = "tax_collection"
	EntrySalaryPayment  EntryType = "salary_payment"
	EntryDeposit        EntryType = "deposit"
	EntryWithdrawal     EntryType = "withdrawal"
	EntryInitialBalance EntryType = "initial_balance"
)

// NormalizeEntryType canonicalizes a treasury entry type label.
func NormalizeEntryType(value string) (EntryType, bool) {
	switch EntryType(strings.ToLower(strings.TrimSpace(value))) {
	case EntryTaxCollection:
		return EntryTaxCollection, true
	case EntrySalaryPayment:
		return EntrySalaryPayment, true
	case EntryDeposit:
		return EntryDeposit, true
	case EntryWithdrawal:
		return EntryWithdrawal, true
	case EntryInitialBalance:
		return EntryInitialBalance, true
	default:
		return EntryUnspecified, false
	}
}

// Bracket maps one [MinSalary, MaxSalary) gross range to a tax rate.
// MaxSalary zero means the bracket is unbounded above.
type Bracket struct {
	MinSalary money.Cents
	MaxSalary money.Cents
	Rate      float64
}

// Unbounded reports whether the bracket has no upper salary limit.
func (b Bracket) Unbounded() bool {
	return b.MaxSalary == 0
}

// Contains reports whether the gross salary falls inside the bracket.
func (b Bracket) Contains(gross money.Cents) bool {
	if gross < b.MinSalary {
		return false
	}
	return b.Unbounded() || gross < b.MaxSalary
}

// RateFor resolves the tax rate for a gross salary: the bracket with the
// highest MinSalary at or below the salary whose range contains it. With no
// matching bracket the rate is zero.
func RateFor(brackets []Bracket, gross money.Cents) float64 {
	rate := float64(0)
	best := money.Cents(-1)
	for _, bracket := range brackets {
		if bracket.Contains(gross) && bracket.MinSalary > best {
			best = bracket.MinSalary
			rate = bracket.Rate
		}
	}
	return rate
}

// Withholding is the tax split of one gross salary.
type Withholding struct {
	Gross money.Cents
	Rate  float64
	Tax   money.Cents
	Net   money.Cents
}

// Withhold computes tax and net pay for a gross salary against the brackets.
// When taxEnabled is false the salary is paid untaxed.
func Withhold(brackets []Bracket, gross money.Cents, taxEnabled bool) Withholding {
	w := Withholding{Gross: gross, Net: gross}
	if !taxEnabled || gross <= 0 {
		return w
	}
	w.Rate = RateFor(brackets, gross)
	w.Tax = money.Percent(gross, w.Rate)
	w.Net = gross - w.Tax
	return w
}

// ValidateBrackets enforces the bracket table invariants: ordered by
// MinSalary starting at zero, contiguous [min, max) ranges, exactly one
// unbounded top bracket, and rates non-decreasing with salary.
func ValidateBrackets(brackets []Bracket) error {
	if len(brackets) == 0 {
		return apperrors.New(apperrors.CodeTaxBracketsInvalid, "at least one tax bracket is required")
	}
	if brackets[0].MinSalary != 0 {
		return apperrors.New(apperrors.CodeTaxBracketsInvalid, "first tax bracket must start at zero")
	}
	for i, bracket := range brackets {
		if bracket.Rate < 0 || bracket.Rate > 100 {
			return apperrors.New(apperrors.CodeTaxBracketsInvalid, "tax rate must be between 0 and 100 percent")
		}
		last := i == len(brackets)-1
		if last {
			if !bracket.Unbounded() {
				return apperrors.New(apperrors.CodeTaxBracketsInvalid, "last tax bracket must be unbounded")
			}
			continue
		}
		if bracket.Unbounded() {
			return apperrors.New(apperrors.CodeTaxBracketsInvalid, "only the last tax bracket may be unbounded")
		}
		if bracket.MaxSalary <= bracket.MinSalary {
			return apperrors.New(apperrors.CodeTaxBracketsInvalid, "tax bracket max must exceed its min")
		}
		next := brackets[i+1]
		if next.MinSalary != bracket.MaxSalary {
			return apperrors.New(apperrors.CodeTaxBracketsInvalid, "tax brackets must be contiguous")
		}
		if next.Rate < bracket.Rate {
			return apperrors.New(apperrors.CodeTaxBracketsInvalid, "tax rates must not decrease with salary")
		}
	}
	return nil
}

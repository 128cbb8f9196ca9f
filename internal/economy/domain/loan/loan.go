// Package loan holds the interest table, amortization math, and lifecycle
// rules for student loans.
package loan

import (
	apperrors "github.com/edutown/economy/internal/platform/errors"

	"github.com/edutown/economy/internal/economy/domain/money"
)

const (
	// MinPrincipal is the smallest loan principal, one currency unit.
	MinPrincipal = money.Cents(100)
	// MinTermMonths and MaxTermMonths bound the loan term.
	MinTermMonths = 1
	MaxTermMonths = 60
)

// RateForTerm returns the flat interest rate in percent for a term in months.
// The rate is resolved at application time and frozen for the loan's life.
func RateForTerm(termMonths int) float64 {
	switch {
	case termMonths <= 6:
		return 5
	case termMonths <= 12:
		return 10
	case termMonths <= 24:
		return 12
	default:
		return 15
	}
}

// Schedule is the frozen repayment plan computed at application time.
type Schedule struct {
	RatePercent float64
	// Total is principal plus flat interest; the borrower owes this much.
	Total money.Cents
	// Payment is the even periodic payment. It rounds up to the cent so that
	// Payment × term never falls below Total.
	Payment money.Cents
}

// Amortize computes the flat-interest schedule for a principal and term.
func Amortize(principal money.Cents, termMonths int) Schedule {
	rate := RateForTerm(termMonths)
	total := money.AddPercent(principal, rate)
	return Schedule{
		RatePercent: rate,
		Total:       total,
		Payment:     money.DivideCeil(total, int64(termMonths)),
	}
}

// ValidateApplication checks loan application inputs before any store access.
func ValidateApplication(borrowerID string, principal money.Cents, termMonths int) error {
	if borrowerID == "" {
		return apperrors.New(apperrors.CodeFieldRequired, "borrower is required")
	}
	if principal < MinPrincipal {
		return apperrors.New(apperrors.CodeLoanAmountTooSmall, "loan amount must be at least one currency unit")
	}
	if termMonths < MinTermMonths || termMonths > MaxTermMonths {
		return apperrors.New(apperrors.CodeLoanInvalidTerm, "loan term must be between 1 and 60 months")
	}
	return nil
}

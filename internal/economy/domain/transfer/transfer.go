// Package transfer validates student-submitted peer transfer intents.
package transfer

import (
	apperrors "github.com/edutown/economy/internal/platform/errors"

	"github.com/edutown/economy/internal/economy/domain/money"
)

// maxDescriptionLength bounds free-text transfer descriptions.
const maxDescriptionLength = 280

// ValidateSubmission checks a transfer intent before any store access.
//
// The sender's balance is checked separately and only advisorily; the
// authoritative funds check happens under the approval transaction.
func ValidateSubmission(fromUserID, toUserID string, amount money.Cents, description string) error {
	if fromUserID == "" {
		return apperrors.New(apperrors.CodeFieldRequired, "sender is required")
	}
	if toUserID == "" {
		return apperrors.New(apperrors.CodeFieldRequired, "recipient is required")
	}
	if toUserID == fromUserID {
		return apperrors.New(apperrors.CodeTransferToSelf, "recipient must differ from sender")
	}
	if amount <= 0 {
		return apperrors.New(apperrors.CodeAmountNotPositive, "transfer amount must be greater than zero")
	}
	if len(description) > maxDescriptionLength {
		return apperrors.New(apperrors.CodeDescriptionTooLong, "transfer description is too long")
	}
	return nil
}

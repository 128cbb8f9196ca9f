package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeAmountNotPositive    Code = "AMOUNT_NOT_POSITIVE"
	CodeDescriptionTooLong   Code = "DESCRIPTION_TOO_LONG"
	CodeTransferToSelf       Code = "TRANSFER_TO_SELF"
	CodeLoanAmountTooSmall   Code = "LOAN_AMOUNT_TOO_SMALL"
	CodeLoanInvalidTerm      Code = "LOAN_INVALID_TERM"
	CodeLandOfferTooLow      Code = "LAND_OFFER_TOO_LOW"
	CodeTaxBracketsInvalid   Code = "TAX_BRACKETS_INVALID"
	CodeLandSwapSameParcel   Code = "LAND_SWAP_SAME_PARCEL"
	CodeFieldRequired        Code = "FIELD_REQUIRED"

	// Conflict errors (state no longer allows the operation)
	CodeAlreadyExists              Code = "ALREADY_EXISTS"
	CodeTransferAlreadyResolved    Code = "TRANSFER_ALREADY_RESOLVED"
	CodeLoanAlreadyOpen            Code = "LOAN_ALREADY_OPEN"
	CodeLoanAlreadyResolved        Code = "LOAN_ALREADY_RESOLVED"
	CodeLoanNotActive              Code = "LOAN_NOT_ACTIVE"
	CodeLoanPaymentExceedsBalance  Code = "LOAN_PAYMENT_EXCEEDS_OUTSTANDING"
	CodeLandAlreadyOwned           Code = "LAND_ALREADY_OWNED"
	CodeLandDuplicateRequest       Code = "LAND_DUPLICATE_REQUEST"
	CodeLandRequestAlreadyResolved Code = "LAND_REQUEST_ALREADY_RESOLVED"

	// Funds errors
	CodeInsufficientFunds         Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientTreasuryFunds Code = "INSUFFICIENT_TREASURY_FUNDS"

	// Identity errors
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeWrongSchool      Code = "WRONG_SCHOOL"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, malformed input
	case CodeAmountNotPositive,
		CodeDescriptionTooLong,
		CodeTransferToSelf,
		CodeLoanAmountTooSmall,
		CodeLoanInvalidTerm,
		CodeLandOfferTooLow,
		CodeTaxBracketsInvalid,
		CodeLandSwapSameParcel,
		CodeFieldRequired:
		return http.StatusBadRequest

	// Conflict - state doesn't allow the operation
	case CodeAlreadyExists,
		CodeTransferAlreadyResolved,
		CodeLoanAlreadyOpen,
		CodeLoanAlreadyResolved,
		CodeLoanNotActive,
		CodeLoanPaymentExceedsBalance,
		CodeLandAlreadyOwned,
		CodeLandDuplicateRequest,
		CodeLandRequestAlreadyResolved,
		CodeInsufficientFunds,
		CodeInsufficientTreasuryFunds:
		return http.StatusConflict

	case CodeUnauthenticated:
		return http.StatusUnauthorized

	case CodePermissionDenied, CodeWrongSchool:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

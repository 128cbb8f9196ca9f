package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorCodeExtraction(t *testing.T) {
	t.Parallel()

	base := New(CodeInsufficientFunds, "balance too low")
	wrapped := fmt.Errorf("approve transfer: %w", base)

	if got := GetCode(wrapped); got != CodeInsufficientFunds {
		t.Fatalf("code = %q, want %q", got, CodeInsufficientFunds)
	}
	if !IsCode(wrapped, CodeInsufficientFunds) {
		t.Fatal("expected IsCode match through wrapping")
	}
	if GetCode(stderrors.New("plain")) != CodeUnknown {
		t.Fatal("expected CodeUnknown for non-domain error")
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := Wrap(CodeNotFound, "loan missing", stderrors.New("sql: no rows"))
	if !stderrors.Is(err, New(CodeNotFound, "other message")) {
		t.Fatal("expected code-based Is match")
	}
	if stderrors.Is(err, New(CodeInternal, "loan missing")) {
		t.Fatal("unexpected match across different codes")
	}
	if err.Unwrap() == nil {
		t.Fatal("expected wrapped cause")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	err := WithMetadata(CodeLandOfferTooLow, "offer below floor", map[string]string{
		"minimum": "9000",
	})
	meta := GetMetadata(fmt.Errorf("submit request: %w", err))
	if meta["minimum"] != "9000" {
		t.Fatalf("metadata = %v, want minimum=9000", meta)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want int
	}{
		{CodeAmountNotPositive, http.StatusBadRequest},
		{CodeLoanInvalidTerm, http.StatusBadRequest},
		{CodeTransferAlreadyResolved, http.StatusConflict},
		{CodeInsufficientFunds, http.StatusConflict},
		{CodeInsufficientTreasuryFunds, http.StatusConflict},
		{CodeLandAlreadyOwned, http.StatusConflict},
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodePermissionDenied, http.StatusForbidden},
		{CodeWrongSchool, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeInternal, http.StatusInternalServerError},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("%s status = %d, want %d", tc.code, got, tc.want)
		}
	}
}

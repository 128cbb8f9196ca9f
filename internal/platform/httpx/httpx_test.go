package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/edutown/economy/internal/platform/errors"
)

func TestRequireMethodRejectsOtherVerbs(t *testing.T) {
	t.Parallel()

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RequireMethod(http.MethodPost))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transfers", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("allow = %q, want POST", rec.Header().Get("Allow"))
	}
}

func TestRequestIDEchoed(t *testing.T) {
	t.Parallel()

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RequestID())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-1")
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "caller-1" {
		t.Fatalf("request id = %q, want caller-1", rec.Header().Get("X-Request-ID"))
	}
}

func TestTracePreservesResponse(t *testing.T) {
	t.Parallel()

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), Trace("economy-test"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/treasury", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
}

func TestRecoverPanicReturns500(t *testing.T) {
	t.Parallel()

	handler := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RecoverPanic())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/land", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestWriteErrorMapsDomainCode(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/transfers/t1/approve", nil)
	WriteError(rec, req, apperrors.New(apperrors.CodeInsufficientFunds, "sender balance too low"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != string(apperrors.CodeInsufficientFunds) {
		t.Fatalf("code = %q, want INSUFFICIENT_FUNDS", body.Error.Code)
	}
	if body.Error.Message != "sender balance too low" {
		t.Fatalf("message = %q", body.Error.Message)
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/treasury", nil)
	WriteError(rec, req, apperrors.Wrap(apperrors.CodeInternal, "treasury scan failed: disk I/O", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk I/O") {
		t.Fatal("internal detail leaked to client")
	}
}

func TestReadJSONRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/v1/loans", strings.NewReader(`{"amount": 100, "bogus": 1}`))
	var payload struct {
		Amount int64 `json:"amount"`
	}
	err := ReadJSON(req, &payload)
	if !apperrors.IsCode(err, apperrors.CodeFieldRequired) {
		t.Fatalf("err = %v, want FIELD_REQUIRED", err)
	}
}

// Package httpapi exposes the classroom-economy HTTP JSON API.
//
// Authentication happens here: every /v1 route verifies the bearer token and
// threads the acting identity through the request context. Teacher-only
// routes additionally check the role before touching storage.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/edutown/economy/internal/economy/auth"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/httpx"
	"github.com/edutown/economy/internal/platform/requestctx"
)

// Handler serves the economy HTTP API.
type Handler struct {
	store storage.Store
	auth  auth.Config
}

// New creates an API handler over the store with the token verifier config.
func New(store storage.Store, authCfg auth.Config) *Handler {
	return &Handler{store: store, auth: authCfg}
}

// Routes builds the service mux with auth and shared middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("GET /v1/accounts/me", h.authenticated(h.getMyAccount))
	mux.Handle("GET /v1/accounts/me/transactions", h.authenticated(h.listMyTransactions))
	mux.Handle("POST /v1/accounts/{user}/deposit", h.teacherOnly(h.depositAccount))
	mux.Handle("POST /v1/accounts/{user}/fine", h.teacherOnly(h.fineAccount))

	mux.Handle("POST /v1/transfers", h.authenticated(h.submitTransfer))
	mux.Handle("GET /v1/transfers", h.authenticated(h.listMyTransfers))
	mux.Handle("GET /v1/transfers/pending", h.teacherOnly(h.listPendingTransfers))
	mux.Handle("POST /v1/transfers/{id}/approve", h.teacherOnly(h.approveTransfer))
	mux.Handle("POST /v1/transfers/{id}/deny", h.teacherOnly(h.denyTransfer))

	mux.Handle("POST /v1/loans", h.authenticated(h.applyForLoan))
	mux.Handle("GET /v1/loans", h.authenticated(h.listLoans))
	mux.Handle("POST /v1/loans/{id}/review", h.teacherOnly(h.reviewLoan))
	mux.Handle("POST /v1/loans/{id}/payments", h.authenticated(h.repayLoan))
	mux.Handle("GET /v1/loans/{id}/payments", h.authenticated(h.listLoanPayments))

	mux.Handle("GET /v1/treasury", h.authenticated(h.getTreasury))
	mux.Handle("POST /v1/treasury/tax", h.teacherOnly(h.setTaxEnabled))
	mux.Handle("GET /v1/treasury/brackets", h.authenticated(h.listTaxBrackets))
	mux.Handle("PUT /v1/treasury/brackets", h.teacherOnly(h.setTaxBrackets))
	mux.Handle("POST /v1/treasury/deposit", h.teacherOnly(h.depositTreasury))
	mux.Handle("POST /v1/treasury/withdraw", h.teacherOnly(h.withdrawTreasury))
	mux.Handle("POST /v1/treasury/salaries", h.teacherOnly(h.paySalaries))
	mux.Handle("POST /v1/treasury/basic-salary", h.teacherOnly(h.payBasicSalary))
	mux.Handle("GET /v1/treasury/transactions", h.teacherOnly(h.listTreasuryTransactions))

	mux.Handle("GET /v1/land", h.authenticated(h.listParcels))
	mux.Handle("POST /v1/land/requests", h.authenticated(h.submitPurchaseRequest))
	mux.Handle("GET /v1/land/requests/pending", h.teacherOnly(h.listPendingPurchaseRequests))
	mux.Handle("POST /v1/land/requests/{id}/review", h.teacherOnly(h.reviewPurchaseRequest))
	mux.Handle("POST /v1/land/swap", h.teacherOnly(h.swapParcels))

	mux.Handle("POST /v1/admin/factory-reset", h.teacherOnly(h.factoryReset))

	return httpx.Chain(mux, httpx.RecoverPanic(), httpx.RequestID(), httpx.Trace("economy"))
}

// authenticated verifies the bearer token and stores the identity in context.
func (h *Handler) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.identityFromRequest(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithIdentity(r.Context(), identity)))
	})
}

// teacherOnly rejects non-teacher identities before the handler runs.
func (h *Handler) teacherOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.identityFromRequest(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if !identity.IsTeacher() {
			httpx.WriteError(w, r, apperrors.New(apperrors.CodePermissionDenied, "teacher role is required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithIdentity(r.Context(), identity)))
	})
}

func (h *Handler) identityFromRequest(r *http.Request) (requestctx.Identity, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return requestctx.Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required")
	}
	return auth.VerifyToken(token, h.auth)
}

// identity returns the authenticated identity; the middleware guarantees it
// is present.
func identity(r *http.Request) requestctx.Identity {
	id, _ := requestctx.IdentityFromContext(r.Context())
	return id
}

// timeJSON renders a timestamp as RFC 3339, empty for the zero time.
func timeJSON(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

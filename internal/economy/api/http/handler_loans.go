package httpapi

import (
	"net/http"
	"strings"

	"github.com/edutown/economy/internal/economy/domain/loan"
	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/httpx"
	"github.com/edutown/economy/internal/platform/id"
)

type loanResponse struct {
	ID           string  `json:"id"`
	BorrowerID   string  `json:"borrower_id"`
	Principal    int64   `json:"principal"`
	TermMonths   int     `json:"term_months"`
	RatePercent  float64 `json:"rate_percent"`
	Status       string  `json:"status"`
	Outstanding  int64   `json:"outstanding"`
	Payment      int64   `json:"payment"`
	DueDate      string  `json:"due_date,omitempty"`
	ReviewerID   string  `json:"reviewer_id,omitempty"`
	ReviewedAt   string  `json:"reviewed_at,omitempty"`
	DenialReason string  `json:"denial_reason,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func renderLoan(record storage.Loan) loanResponse {
	return loanResponse{
		ID:           record.ID,
		BorrowerID:   record.BorrowerID,
		Principal:    int64(record.Principal),
		TermMonths:   record.TermMonths,
		RatePercent:  record.RatePercent,
		Status:       string(record.Status),
		Outstanding:  int64(record.Outstanding),
		Payment:      int64(record.Payment),
		DueDate:      timeJSON(record.DueDate),
		ReviewerID:   record.ReviewerID,
		ReviewedAt:   timeJSON(record.ReviewedAt),
		DenialReason: record.DenialReason,
		CreatedAt:    timeJSON(record.CreatedAt),
	}
}

func renderLoans(records []storage.Loan) []loanResponse {
	out := make([]loanResponse, 0, len(records))
	for _, record := range records {
		out = append(out, renderLoan(record))
	}
	return out
}

type applyLoanRequest struct {
	Amount     int64 `json:"amount"`
	TermMonths int   `json:"term_months"`
}

// applyForLoan files a loan application for the acting user with the rate and
// schedule frozen at application time.
func (h *Handler) applyForLoan(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	var body applyLoanRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	principal := money.Cents(body.Amount)
	if err := loan.ValidateApplication(actor.UserID, principal, body.TermMonths); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	schedule := loan.Amortize(principal, body.TermMonths)
	record := storage.Loan{
		ID:          id.MustNewID(),
		SchoolID:    actor.SchoolID,
		BorrowerID:  actor.UserID,
		Principal:   principal,
		TermMonths:  body.TermMonths,
		RatePercent: schedule.RatePercent,
		Outstanding: schedule.Total,
		Payment:     schedule.Payment,
	}
	if err := h.store.CreateLoan(ctx, record); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	created, err := h.store.GetLoan(ctx, actor.SchoolID, record.ID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusCreated, renderLoan(created))
}

// listLoans returns the teacher's review queue or the student's own loans.
func (h *Handler) listLoans(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	if actor.IsTeacher() {
		status := loan.StatusPending
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			normalized, ok := loan.NormalizeStatus(raw)
			if !ok {
				httpx.WriteError(w, r, apperrors.New(apperrors.CodeFieldRequired, "unknown loan status"))
				return
			}
			status = normalized
		}
		records, err := h.store.ListLoansByStatus(ctx, actor.SchoolID, status)
		if err != nil {
			httpx.WriteError(w, r, mapStoreError(err))
			return
		}
		_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"loans": renderLoans(records)})
		return
	}

	records, err := h.store.ListLoansByBorrower(ctx, actor.SchoolID, actor.UserID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"loans": renderLoans(records)})
}

type reviewRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

func (h *Handler) reviewLoan(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	var body reviewRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	var record storage.Loan
	var err error
	if body.Approved {
		record, err = h.store.ApproveLoan(ctx, actor.SchoolID, r.PathValue("id"), actor.UserID)
	} else {
		record, err = h.store.DenyLoan(ctx, actor.SchoolID, r.PathValue("id"), actor.UserID, body.Reason)
	}
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderLoan(record))
}

type repayRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) repayLoan(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	var body repayRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	record, err := h.store.RepayLoan(httpx.RequestContext(r), actor.SchoolID, r.PathValue("id"), actor.UserID, money.Cents(body.Amount))
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderLoan(record))
}

type loanPaymentResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) listLoanPayments(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)
	loanID := r.PathValue("id")

	record, err := h.store.GetLoan(ctx, actor.SchoolID, loanID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	// Students see only their own loan's history.
	if !actor.IsTeacher() && record.BorrowerID != actor.UserID {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeNotFound, "record not found"))
		return
	}

	payments, err := h.store.ListLoanPayments(ctx, actor.SchoolID, loanID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	out := make([]loanPaymentResponse, 0, len(payments))
	for _, payment := range payments {
		out = append(out, loanPaymentResponse{
			ID:        payment.ID,
			Amount:    int64(payment.Amount),
			CreatedAt: timeJSON(payment.CreatedAt),
		})
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"payments": out})
}

package httpapi

import (
	"net/http"

	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/domain/review"
	"github.com/edutown/economy/internal/economy/domain/transfer"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/httpx"
	"github.com/edutown/economy/internal/platform/id"
)

type transferResponse struct {
	ID           string `json:"id"`
	FromUserID   string `json:"from_user_id"`
	ToUserID     string `json:"to_user_id"`
	Amount       int64  `json:"amount"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
	ReviewerID   string `json:"reviewer_id,omitempty"`
	ReviewedAt   string `json:"reviewed_at,omitempty"`
	DenialReason string `json:"denial_reason,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func renderTransfer(t storage.PendingTransfer) transferResponse {
	return transferResponse{
		ID:           t.ID,
		FromUserID:   t.FromUserID,
		ToUserID:     t.ToUserID,
		Amount:       int64(t.Amount),
		Description:  t.Description,
		Status:       string(t.Status),
		ReviewerID:   t.ReviewerID,
		ReviewedAt:   timeJSON(t.ReviewedAt),
		DenialReason: t.DenialReason,
		CreatedAt:    timeJSON(t.CreatedAt),
	}
}

func renderTransfers(transfers []storage.PendingTransfer) []transferResponse {
	out := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, renderTransfer(t))
	}
	return out
}

type submitTransferRequest struct {
	ToUserID    string `json:"to_user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// submitTransfer files a pending transfer from the acting user. The balance
// check here is advisory; the authoritative check runs at approval.
func (h *Handler) submitTransfer(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	var body submitTransferRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	amount := money.Cents(body.Amount)
	if err := transfer.ValidateSubmission(actor.UserID, body.ToUserID, amount, body.Description); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	// The recipient must exist in the sender's school.
	if _, err := h.store.GetAccountByUser(ctx, actor.SchoolID, body.ToUserID); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	account, err := h.store.GetAccountByUser(ctx, actor.SchoolID, actor.UserID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	if account.Balance < amount {
		httpx.WriteError(w, r, apperrors.WithMetadata(apperrors.CodeInsufficientFunds,
			"balance does not cover the transfer",
			map[string]string{"balance": account.Balance.String()}))
		return
	}

	record := storage.PendingTransfer{
		ID:          id.MustNewID(),
		SchoolID:    actor.SchoolID,
		FromUserID:  actor.UserID,
		ToUserID:    body.ToUserID,
		Amount:      amount,
		Description: body.Description,
	}
	if err := h.store.CreateTransfer(ctx, record); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	created, err := h.store.GetTransfer(ctx, actor.SchoolID, record.ID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusCreated, renderTransfer(created))
}

func (h *Handler) listMyTransfers(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	transfers, err := h.store.ListTransfersByUser(httpx.RequestContext(r), actor.SchoolID, actor.UserID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"transfers": renderTransfers(transfers)})
}

func (h *Handler) listPendingTransfers(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	transfers, err := h.store.ListTransfersByStatus(httpx.RequestContext(r), actor.SchoolID, review.StatusPending)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"transfers": renderTransfers(transfers)})
}

func (h *Handler) approveTransfer(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	approved, err := h.store.ApproveTransfer(httpx.RequestContext(r), actor.SchoolID, r.PathValue("id"), actor.UserID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderTransfer(approved))
}

type denyRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) denyTransfer(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	var body denyRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	denied, err := h.store.DenyTransfer(httpx.RequestContext(r), actor.SchoolID, r.PathValue("id"), actor.UserID, body.Reason)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderTransfer(denied))
}

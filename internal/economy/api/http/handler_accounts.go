package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/httpx"
)

type accountResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Balance  int64  `json:"balance"`
	Display  string `json:"balance_display"`
	Currency string `json:"currency"`
}

func renderAccount(account storage.Account) accountResponse {
	return accountResponse{
		ID:       account.ID,
		UserID:   account.UserID,
		Balance:  int64(account.Balance),
		Display:  account.Balance.String(),
		Currency: "cents",
	}
}

type ledgerEntryResponse struct {
	ID            string `json:"id"`
	FromAccountID string `json:"from_account_id,omitempty"`
	ToAccountID   string `json:"to_account_id,omitempty"`
	Amount        int64  `json:"amount"`
	Type          string `json:"type"`
	Description   string `json:"description,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func renderLedgerEntry(entry storage.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:            entry.ID,
		FromAccountID: entry.FromAccountID,
		ToAccountID:   entry.ToAccountID,
		Amount:        int64(entry.Amount),
		Type:          string(entry.Type),
		Description:   entry.Description,
		CreatedAt:     timeJSON(entry.CreatedAt),
	}
}

func (h *Handler) getMyAccount(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	account, err := h.store.GetAccountByUser(httpx.RequestContext(r), actor.SchoolID, actor.UserID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderAccount(account))
}

func (h *Handler) listMyTransactions(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	account, err := h.store.GetAccountByUser(ctx, actor.SchoolID, actor.UserID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}

	pageSize := 50
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			httpx.WriteError(w, r, apperrors.New(apperrors.CodeFieldRequired, "page_size must be between 1 and 200"))
			return
		}
		pageSize = parsed
	}

	page, err := h.store.ListLedgerEntries(ctx, actor.SchoolID, account.ID, pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}

	entries := make([]ledgerEntryResponse, 0, len(page.Entries))
	for _, entry := range page.Entries {
		entries = append(entries, renderLedgerEntry(entry))
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"entries":         entries,
		"next_page_token": page.NextPageToken,
	})
}

type adjustRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (h *Handler) depositAccount(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	var body adjustRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if body.Amount <= 0 {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeAmountNotPositive, "amount must be greater than zero"))
		return
	}
	account, err := h.store.Deposit(httpx.RequestContext(r), actor.SchoolID, r.PathValue("user"), money.Cents(body.Amount), body.Description)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderAccount(account))
}

func (h *Handler) fineAccount(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	var body adjustRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if body.Amount <= 0 {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeAmountNotPositive, "amount must be greater than zero"))
		return
	}
	account, err := h.store.Fine(httpx.RequestContext(r), actor.SchoolID, r.PathValue("user"), money.Cents(body.Amount), body.Description)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderAccount(account))
}

// mapStoreError translates storage sentinels to coded errors; coded errors
// pass through untouched.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.Wrap(apperrors.CodeNotFound, "record not found", err)
	case errors.Is(err, storage.ErrAlreadyExists):
		return apperrors.Wrap(apperrors.CodeAlreadyExists, "record already exists", err)
	default:
		return err
	}
}

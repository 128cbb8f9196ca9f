package httpapi

import (
	"net/http"

	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/domain/treasury"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/httpx"
)

// defaultBasicSalary is the flat tax-exempt amount paid to unemployed
// students when the batch request names none.
const defaultBasicSalary = money.Cents(10000)

type treasuryResponse struct {
	TownClass  string `json:"town_class"`
	Balance    int64  `json:"balance"`
	TaxEnabled bool   `json:"tax_enabled"`
}

func renderTreasury(t storage.Treasury) treasuryResponse {
	return treasuryResponse{
		TownClass:  t.TownClass,
		Balance:    int64(t.Balance),
		TaxEnabled: t.TaxEnabled,
	}
}

func (h *Handler) getTreasury(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	t, err := h.store.EnsureTreasury(httpx.RequestContext(r), actor.SchoolID, actor.TownClass)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderTreasury(t))
}

type setTaxRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) setTaxEnabled(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	var body setTaxRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if _, err := h.store.EnsureTreasury(ctx, actor.SchoolID, actor.TownClass); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	t, err := h.store.SetTaxEnabled(ctx, actor.SchoolID, actor.TownClass, body.Enabled)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderTreasury(t))
}

type bracketPayload struct {
	MinSalary   int64   `json:"min_salary"`
	MaxSalary   int64   `json:"max_salary"`
	RatePercent float64 `json:"rate_percent"`
}

func (h *Handler) listTaxBrackets(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	brackets, err := h.store.ListTaxBrackets(httpx.RequestContext(r), actor.SchoolID, actor.TownClass)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	out := make([]bracketPayload, 0, len(brackets))
	for _, bracket := range brackets {
		out = append(out, bracketPayload{
			MinSalary:   int64(bracket.MinSalary),
			MaxSalary:   int64(bracket.MaxSalary),
			RatePercent: bracket.Rate,
		})
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"brackets": out})
}

type setBracketsRequest struct {
	Brackets []bracketPayload `json:"brackets"`
}

func (h *Handler) setTaxBrackets(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	var body setBracketsRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	brackets := make([]treasury.Bracket, 0, len(body.Brackets))
	for _, bracket := range body.Brackets {
		brackets = append(brackets, treasury.Bracket{
			MinSalary: money.Cents(bracket.MinSalary),
			MaxSalary: money.Cents(bracket.MaxSalary),
			Rate:      bracket.RatePercent,
		})
	}
	if err := h.store.SetTaxBrackets(httpx.RequestContext(r), actor.SchoolID, actor.TownClass, brackets); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) depositTreasury(w http.ResponseWriter, r *http.Request) {
	h.adjustTreasury(w, r, true)
}

func (h *Handler) withdrawTreasury(w http.ResponseWriter, r *http.Request) {
	h.adjustTreasury(w, r, false)
}

func (h *Handler) adjustTreasury(w http.ResponseWriter, r *http.Request, deposit bool) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	var body adjustRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if body.Amount <= 0 {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeAmountNotPositive, "amount must be greater than zero"))
		return
	}
	if _, err := h.store.EnsureTreasury(ctx, actor.SchoolID, actor.TownClass); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}

	var t storage.Treasury
	var err error
	if deposit {
		t, err = h.store.DepositTreasury(ctx, actor.SchoolID, actor.TownClass, money.Cents(body.Amount), body.Description)
	} else {
		t, err = h.store.WithdrawTreasury(ctx, actor.SchoolID, actor.TownClass, money.Cents(body.Amount), body.Description)
	}
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderTreasury(t))
}

type salaryBatchResponse struct {
	TownClass  string `json:"town_class"`
	PaidCount  int    `json:"paid_count"`
	GrossTotal int64  `json:"gross_total"`
	TaxTotal   int64  `json:"tax_total"`
	NetTotal   int64  `json:"net_total"`
}

func renderSalaryBatch(result storage.SalaryBatchResult) salaryBatchResponse {
	return salaryBatchResponse{
		TownClass:  result.TownClass,
		PaidCount:  result.PaidCount,
		GrossTotal: int64(result.GrossTotal),
		TaxTotal:   int64(result.TaxTotal),
		NetTotal:   int64(result.NetTotal),
	}
}

func (h *Handler) paySalaries(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	if _, err := h.store.EnsureTreasury(ctx, actor.SchoolID, actor.TownClass); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	result, err := h.store.PayEmployedSalaries(ctx, actor.SchoolID, actor.TownClass)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderSalaryBatch(result))
}

type basicSalaryRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) payBasicSalary(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	var body basicSalaryRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	amount := money.Cents(body.Amount)
	if amount == 0 {
		amount = defaultBasicSalary
	}
	if _, err := h.store.EnsureTreasury(ctx, actor.SchoolID, actor.TownClass); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	result, err := h.store.PayBasicSalary(ctx, actor.SchoolID, actor.TownClass, amount)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderSalaryBatch(result))
}

type treasuryEntryResponse struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func (h *Handler) listTreasuryTransactions(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	entries, err := h.store.ListTreasuryEntries(httpx.RequestContext(r), actor.SchoolID, actor.TownClass)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	out := make([]treasuryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, treasuryEntryResponse{
			ID:          entry.ID,
			Amount:      int64(entry.Amount),
			Type:        string(entry.Type),
			Description: entry.Description,
			CreatedAt:   timeJSON(entry.CreatedAt),
		})
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

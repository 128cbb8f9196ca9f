package httpapi

import (
	"net/http"
	"time"

	"github.com/edutown/economy/internal/economy/domain/land"
	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/httpx"
	"github.com/edutown/economy/internal/platform/id"
)

type parcelResponse struct {
	ID           string `json:"id"`
	GridX        int    `json:"grid_x"`
	GridY        int    `json:"grid_y"`
	Biome        string `json:"biome"`
	BaseValue    int64  `json:"base_value"`
	CurrentValue int64  `json:"current_value"`
	OwnerID      string `json:"owner_id,omitempty"`
	PurchasedAt  string `json:"purchased_at,omitempty"`
}

func renderParcel(p storage.Parcel, now time.Time) parcelResponse {
	return parcelResponse{
		ID:           p.ID,
		GridX:        p.GridX,
		GridY:        p.GridY,
		Biome:        p.Biome,
		BaseValue:    int64(p.BaseValue),
		CurrentValue: int64(land.CurrentValue(p.BaseValue, p.Owned(), p.PurchasedAt, now)),
		OwnerID:      p.OwnerID,
		PurchasedAt:  timeJSON(p.PurchasedAt),
	}
}

func (h *Handler) listParcels(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	parcels, err := h.store.ListParcels(httpx.RequestContext(r), actor.SchoolID, actor.TownClass)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	now := time.Now()
	out := make([]parcelResponse, 0, len(parcels))
	for _, p := range parcels {
		out = append(out, renderParcel(p, now))
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"parcels": out})
}

type purchaseRequestResponse struct {
	ID           string `json:"id"`
	ParcelID     string `json:"parcel_id"`
	RequesterID  string `json:"requester_id"`
	OfferedPrice int64  `json:"offered_price"`
	Status       string `json:"status"`
	ReviewerID   string `json:"reviewer_id,omitempty"`
	ReviewedAt   string `json:"reviewed_at,omitempty"`
	DenialReason string `json:"denial_reason,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func renderPurchaseRequest(pr storage.PurchaseRequest) purchaseRequestResponse {
	return purchaseRequestResponse{
		ID:           pr.ID,
		ParcelID:     pr.ParcelID,
		RequesterID:  pr.RequesterID,
		OfferedPrice: int64(pr.OfferedPrice),
		Status:       string(pr.Status),
		ReviewerID:   pr.ReviewerID,
		ReviewedAt:   timeJSON(pr.ReviewedAt),
		DenialReason: pr.DenialReason,
		CreatedAt:    timeJSON(pr.CreatedAt),
	}
}

type submitPurchaseRequest struct {
	ParcelID     string `json:"parcel_id"`
	OfferedPrice int64  `json:"offered_price"`
}

// submitPurchaseRequest files an offer on a parcel. The offer floor and
// ownership are re-checked transactionally in the store; the balance check
// here is advisory, like transfer submission.
func (h *Handler) submitPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	var body submitPurchaseRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if body.ParcelID == "" {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeFieldRequired, "parcel_id is required"))
		return
	}
	offer := money.Cents(body.OfferedPrice)
	if offer <= 0 {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeAmountNotPositive, "offered_price must be greater than zero"))
		return
	}
	account, err := h.store.GetAccountByUser(ctx, actor.SchoolID, actor.UserID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	if account.Balance < offer {
		httpx.WriteError(w, r, apperrors.WithMetadata(apperrors.CodeInsufficientFunds,
			"balance does not cover the offer",
			map[string]string{"balance": account.Balance.String()}))
		return
	}

	record := storage.PurchaseRequest{
		ID:           id.MustNewID(),
		SchoolID:     actor.SchoolID,
		ParcelID:     body.ParcelID,
		RequesterID:  actor.UserID,
		OfferedPrice: offer,
	}
	if err := h.store.CreatePurchaseRequest(ctx, record); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	created, err := h.store.GetPurchaseRequest(ctx, actor.SchoolID, record.ID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusCreated, renderPurchaseRequest(created))
}

func (h *Handler) listPendingPurchaseRequests(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	requests, err := h.store.ListPendingPurchaseRequests(httpx.RequestContext(r), actor.SchoolID)
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	out := make([]purchaseRequestResponse, 0, len(requests))
	for _, pr := range requests {
		out = append(out, renderPurchaseRequest(pr))
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (h *Handler) reviewPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	var body reviewRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	requestID := r.PathValue("id")

	var reviewed storage.PurchaseRequest
	var err error
	if body.Approved {
		reviewed, err = h.store.ApprovePurchaseRequest(ctx, actor.SchoolID, requestID, actor.UserID)
	} else {
		reviewed, err = h.store.DenyPurchaseRequest(ctx, actor.SchoolID, requestID, actor.UserID, body.Reason)
	}
	if err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, renderPurchaseRequest(reviewed))
}

type swapParcelsRequest struct {
	ParcelA string `json:"parcel_a"`
	ParcelB string `json:"parcel_b"`
}

func (h *Handler) swapParcels(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	ctx := httpx.RequestContext(r)

	var body swapParcelsRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if body.ParcelA == "" || body.ParcelB == "" {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeFieldRequired, "parcel_a and parcel_b are required"))
		return
	}
	if err := h.store.SwapParcelPositions(ctx, actor.SchoolID, body.ParcelA, body.ParcelB); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

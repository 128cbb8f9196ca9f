package httpapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/storage"
)

func (a *testAPI) seedParcel(parcelID string, x, y int, baseValue money.Cents) {
	a.t.Helper()
	err := a.store.CreateParcel(context.Background(), storage.Parcel{
		ID:        parcelID,
		SchoolID:  testSchool,
		TownClass: testClass,
		GridX:     x,
		GridY:     y,
		Biome:     "meadow",
		BaseValue: baseValue,
	})
	if err != nil {
		a.t.Fatalf("seed parcel %s: %v", parcelID, err)
	}
}

func TestListParcels(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedParcel("parcel-1", 0, 0, 10000)
	api.seedParcel("parcel-2", 1, 0, 15000)

	rec := api.do(http.MethodGet, "/v1/land", api.token("alice", "student"), nil)
	wantStatus(t, rec, http.StatusOK)

	var body struct {
		Parcels []struct {
			ID           string `json:"id"`
			BaseValue    int64  `json:"base_value"`
			CurrentValue int64  `json:"current_value"`
			OwnerID      string `json:"owner_id"`
		} `json:"parcels"`
	}
	decodeJSON(t, rec, &body)
	if len(body.Parcels) != 2 {
		t.Fatalf("parcels = %d, want 2", len(body.Parcels))
	}
	// Unowned land does not appreciate.
	if body.Parcels[0].CurrentValue != body.Parcels[0].BaseValue {
		t.Fatalf("unowned parcel value = %d, want %d", body.Parcels[0].CurrentValue, body.Parcels[0].BaseValue)
	}
}

func TestPurchaseRequestFlow(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedStudent("alice", 0)
	api.seedAccount("alice", 20000)
	api.seedParcel("parcel-1", 0, 0, 10000)
	alice := api.token("alice", "student")
	teacher := api.teacherToken()

	rec := api.do(http.MethodPost, "/v1/land/requests", alice,
		map[string]any{"parcel_id": "parcel-1", "offered_price": 9000})
	wantStatus(t, rec, http.StatusCreated)
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeJSON(t, rec, &created)
	if created.Status != "pending" {
		t.Fatalf("status = %q, want pending", created.Status)
	}

	rec = api.do(http.MethodGet, "/v1/land/requests/pending", teacher, nil)
	wantStatus(t, rec, http.StatusOK)
	var pending struct {
		Requests []struct {
			ID string `json:"id"`
		} `json:"requests"`
	}
	decodeJSON(t, rec, &pending)
	if len(pending.Requests) != 1 {
		t.Fatalf("pending = %+v", pending)
	}

	rec = api.do(http.MethodPost, "/v1/land/requests/"+created.ID+"/review", teacher,
		map[string]any{"approved": true})
	wantStatus(t, rec, http.StatusOK)

	// The sale moves the offer from the buyer into the treasury.
	rec = api.do(http.MethodGet, "/v1/accounts/me", alice, nil)
	var account struct {
		Balance int64 `json:"balance"`
	}
	decodeJSON(t, rec, &account)
	if account.Balance != 11000 {
		t.Fatalf("buyer balance = %d, want 11000", account.Balance)
	}

	rec = api.do(http.MethodGet, "/v1/land", alice, nil)
	var parcels struct {
		Parcels []struct {
			OwnerID     string `json:"owner_id"`
			PurchasedAt string `json:"purchased_at"`
		} `json:"parcels"`
	}
	decodeJSON(t, rec, &parcels)
	if parcels.Parcels[0].OwnerID != "alice" || parcels.Parcels[0].PurchasedAt == "" {
		t.Fatalf("parcel after sale = %+v", parcels.Parcels[0])
	}
}

func TestPurchaseRequestValidation(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedStudent("alice", 0)
	api.seedAccount("alice", 20000)
	api.seedParcel("parcel-1", 0, 0, 10000)
	alice := api.token("alice", "student")

	// Offers below 90% of the current value are rejected outright.
	rec := api.do(http.MethodPost, "/v1/land/requests", alice,
		map[string]any{"parcel_id": "parcel-1", "offered_price": 8999})
	wantErrorCode(t, rec, http.StatusBadRequest, "LAND_OFFER_TOO_LOW")

	rec = api.do(http.MethodPost, "/v1/land/requests", alice,
		map[string]any{"parcel_id": "parcel-1", "offered_price": 30000})
	wantErrorCode(t, rec, http.StatusConflict, "INSUFFICIENT_FUNDS")

	rec = api.do(http.MethodPost, "/v1/land/requests", alice,
		map[string]any{"parcel_id": "parcel-1", "offered_price": 10000})
	wantStatus(t, rec, http.StatusCreated)

	rec = api.do(http.MethodPost, "/v1/land/requests", alice,
		map[string]any{"parcel_id": "parcel-1", "offered_price": 12000})
	wantErrorCode(t, rec, http.StatusConflict, "LAND_DUPLICATE_REQUEST")
}

func TestSwapParcels(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedParcel("parcel-1", 0, 0, 10000)
	api.seedParcel("parcel-2", 1, 0, 15000)
	teacher := api.teacherToken()

	rec := api.do(http.MethodPost, "/v1/land/swap", teacher,
		map[string]any{"parcel_a": "parcel-1", "parcel_b": "parcel-2"})
	wantStatus(t, rec, http.StatusNoContent)

	rec = api.do(http.MethodPost, "/v1/land/swap", teacher,
		map[string]any{"parcel_a": "parcel-1", "parcel_b": "parcel-1"})
	wantErrorCode(t, rec, http.StatusBadRequest, "LAND_SWAP_SAME_PARCEL")
}

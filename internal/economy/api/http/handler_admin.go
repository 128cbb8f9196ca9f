package httpapi

import (
	"net/http"

	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/httpx"
)

type factoryResetRequest struct {
	Confirm string `json:"confirm"`
}

// factoryReset wipes the acting teacher's school. The caller must echo the
// school id to confirm the wipe is intentional.
func (h *Handler) factoryReset(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)

	var body factoryResetRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if body.Confirm != actor.SchoolID {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeFieldRequired, "confirm must match the school id"))
		return
	}
	if err := h.store.FactoryReset(httpx.RequestContext(r), actor.SchoolID); err != nil {
		httpx.WriteError(w, r, mapStoreError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/placebadge/internal/domain/coordinator"
	"github.com/okian/placebadge/internal/domain/model"
	"github.com/okian/placebadge/internal/domain/types"
)

// BadgeDependencies defines the badge operations.
type BadgeDependencies interface {
	Trigger(ctx context.Context, wait bool) (types.TriggerResult, error)
	Badges(ctx context.Context) []types.Badge
	ClearBadges(ctx context.Context) int
	PrintBadges(ctx context.Context) int
}

type badgesResponse struct {
	Count  int           `json:"count"`
	Badges []types.Badge `json:"badges"`
}

type countResponse struct {
	Count int `json:"count"`
}

// BadgesHandler handles badge requests.
type BadgesHandler struct {
	deps BadgeDependencies
}

// NewBadgesHandler creates a new badges handler.
func NewBadgesHandler(deps BadgeDependencies) *BadgesHandler {
	return &BadgesHandler{deps: deps}
}

// HandleBadges handles GET /badges (list) and DELETE /badges (clear).
func (h *BadgesHandler) HandleBadges(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		badges := h.deps.Badges(r.Context())
		writeJSON(w, http.StatusOK, badgesResponse{Count: len(badges), Badges: badges})
	case http.MethodDelete:
		writeJSON(w, http.StatusOK, countResponse{Count: h.deps.ClearBadges(r.Context())})
	default:
		http.NotFound(w, r)
	}
}

// HandlePrint handles POST /badges/print requests.
func (h *BadgesHandler) HandlePrint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: h.deps.PrintBadges(r.Context())})
}

// HandleEnsure handles POST /badges/ensure requests. With ?wait=true the
// response is sent once a started download has finished.
func (h *BadgesHandler) HandleEnsure(w http.ResponseWriter, r *http.Request) {
	const op = "api.ensure_badge"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	wait := false
	if v := r.URL.Query().Get("wait"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		wait = parsed
	}

	res, err := h.deps.Trigger(r.Context(), wait)
	switch {
	case err == nil:
		status := http.StatusOK
		if res.Badge == nil && res.JobID != "" {
			status = http.StatusAccepted
		}
		writeJSON(w, status, res)
	case errors.Is(err, model.ErrNoLocationAvailable):
		writeJSON(w, http.StatusConflict, res)
	case errors.Is(err, coordinator.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, coordinator.ErrFetchFailed):
		writeError(w, http.StatusBadGateway, "fetch_failed", err)
	case errors.Is(err, model.ErrNotStarted), errors.Is(err, coordinator.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

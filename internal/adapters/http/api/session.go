package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/placebadge/internal/domain/types"
)

// SessionDependencies defines the session lifecycle operations.
type SessionDependencies interface {
	SeedSession(ctx context.Context, lat, lon float64, at time.Time, provider string) (types.Reading, bool, error)
	ResetSession(ctx context.Context)
}

type seedResponse struct {
	Seeded  bool          `json:"seeded"`
	Reading types.Reading `json:"reading"`
}

// SessionHandler handles session requests.
type SessionHandler struct {
	deps SessionDependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

// HandleSeed handles POST /session/seed requests. The body carries the last
// known reading and must include its capture time.
func (h *SessionHandler) HandleSeed(w http.ResponseWriter, r *http.Request) {
	const op = "api.seed_session"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ts, err := req.validate()
	if err == nil && ts.IsZero() {
		err = errors.New("missing ts")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	reading, seeded, err := h.deps.SeedSession(r.Context(), *req.Lat, *req.Lon, ts, req.Provider)
	if err != nil {
		writeReadingError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, seedResponse{Seeded: seeded, Reading: reading})
}

// HandleReset handles POST /session/reset requests. Collected badges are kept.
func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	h.deps.ResetSession(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

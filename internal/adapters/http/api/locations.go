package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/placebadge/internal/adapters/mocklocation"
	"github.com/okian/placebadge/internal/domain/geo"
	"github.com/okian/placebadge/internal/domain/model"
	"github.com/okian/placebadge/internal/domain/types"
)

// LocationDependencies defines the location source operations.
type LocationDependencies interface {
	ReportLocation(ctx context.Context, lat, lon float64, at time.Time, provider string) (types.Reading, bool, error)
	PushMockPlace(ctx context.Context, place string) (types.Reading, bool, error)
	CurrentReading(ctx context.Context) (types.Reading, bool)
}

// locationRequest is the body of POST /locations.
type locationRequest struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	TS       string   `json:"ts"`
	Provider string   `json:"provider"`
}

func (l locationRequest) validate() (time.Time, error) {
	switch {
	case l.Lat == nil:
		return time.Time{}, errors.New("missing lat")
	case l.Lon == nil:
		return time.Time{}, errors.New("missing lon")
	case !(geo.Coordinate{Lat: *l.Lat, Lon: *l.Lon}).Finite():
		return time.Time{}, model.ErrInvalidCoordinate
	case *l.Lat < -90 || *l.Lat > 90:
		return time.Time{}, fmt.Errorf("lat %v out of range", *l.Lat)
	case *l.Lon < -180 || *l.Lon > 180:
		return time.Time{}, fmt.Errorf("lon %v out of range", *l.Lon)
	}
	if strings.TrimSpace(l.TS) == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, l.TS)
	if err != nil {
		return time.Time{}, errors.New("invalid ts; must be RFC3339")
	}
	return ts, nil
}

type locationResponse struct {
	Accepted bool          `json:"accepted"`
	Reading  types.Reading `json:"reading"`
}

// LocationsHandler handles location requests.
type LocationsHandler struct {
	deps LocationDependencies
}

// NewLocationsHandler creates a new locations handler.
func NewLocationsHandler(deps LocationDependencies) *LocationsHandler {
	return &LocationsHandler{deps: deps}
}

// HandlePostLocation handles POST /locations requests.
func (h *LocationsHandler) HandlePostLocation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_location"
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
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	reading, accepted, err := h.deps.ReportLocation(r.Context(), *req.Lat, *req.Lon, ts, req.Provider)
	if err != nil {
		writeReadingError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, locationResponse{Accepted: accepted, Reading: reading})
}

// HandlePostMock handles POST /locations/mock/{place} requests.
func (h *LocationsHandler) HandlePostMock(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_mock_location"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	place := strings.TrimPrefix(r.URL.Path, "/locations/mock/")
	if place == "" || strings.Contains(place, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	reading, accepted, err := h.deps.PushMockPlace(r.Context(), place)
	if err != nil {
		if errors.Is(err, mocklocation.ErrUnknownPlace) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeReadingError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, locationResponse{Accepted: accepted, Reading: reading})
}

// HandleGetCurrent handles GET /locations/current requests.
func (h *LocationsHandler) HandleGetCurrent(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_current_location"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	reading, ok := h.deps.CurrentReading(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "no_location", NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func writeReadingError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, model.ErrInvalidCoordinate) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err)
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	LocationDependencies
	SessionDependencies
	BadgeDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	locationsHandler *LocationsHandler
	sessionHandler   *SessionHandler
	badgesHandler    *BadgesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		locationsHandler: NewLocationsHandler(deps),
		sessionHandler:   NewSessionHandler(deps),
		badgesHandler:    NewBadgesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/locations", MetricsMiddleware(s.locationsHandler.HandlePostLocation, "locations"))
	mux.HandleFunc("/locations/current", MetricsMiddleware(s.locationsHandler.HandleGetCurrent, "locations_current"))
	mux.HandleFunc("/locations/mock/", MetricsMiddleware(s.locationsHandler.HandlePostMock, "locations_mock"))
	mux.HandleFunc("/session/seed", MetricsMiddleware(s.sessionHandler.HandleSeed, "session_seed"))
	mux.HandleFunc("/session/reset", MetricsMiddleware(s.sessionHandler.HandleReset, "session_reset"))
	mux.HandleFunc("/badges", MetricsMiddleware(s.badgesHandler.HandleBadges, "badges"))
	mux.HandleFunc("/badges/ensure", MetricsMiddleware(s.badgesHandler.HandleEnsure, "badges_ensure"))
	mux.HandleFunc("/badges/print", MetricsMiddleware(s.badgesHandler.HandlePrint, "badges_print"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/rolloff/internal/adapters/repository"
	"github.com/okian/rolloff/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AddEntity(ctx context.Context, collectionID string, e model.Entity) error
	SetRank(ctx context.Context, collectionID string, id model.EntityID, rank float64) error
	Entities(ctx context.Context, collectionID string) ([]model.Entity, error)
	StartCollection(ctx context.Context, collectionID string) error
	DeleteCollection(ctx context.Context, collectionID string) error
	StartResolution(ctx context.Context, collectionID string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	collectionsHandler *CollectionsHandler
	resolutionsHandler *ResolutionsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		collectionsHandler: NewCollectionsHandler(deps),
		resolutionsHandler: NewResolutionsHandler(deps),
	}
}

// Register attaches all HTTP routes to the router.
func (s *Server) Register(ctx context.Context, r *mux.Router) {
	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)

	r.HandleFunc("/collections/{collection}/entities",
		MetricsMiddleware(s.collectionsHandler.HandleAddEntity, "add_entity")).Methods(http.MethodPost)
	r.HandleFunc("/collections/{collection}/entities",
		MetricsMiddleware(s.collectionsHandler.HandleListEntities, "list_entities")).Methods(http.MethodGet)
	r.HandleFunc("/collections/{collection}/entities/{entity}/rank",
		MetricsMiddleware(s.collectionsHandler.HandleSetRank, "set_rank")).Methods(http.MethodPut)
	r.HandleFunc("/collections/{collection}/start",
		MetricsMiddleware(s.collectionsHandler.HandleStart, "start_collection")).Methods(http.MethodPost)
	r.HandleFunc("/collections/{collection}",
		MetricsMiddleware(s.collectionsHandler.HandleDelete, "delete_collection")).Methods(http.MethodDelete)
	r.HandleFunc("/collections/{collection}/resolve",
		MetricsMiddleware(s.resolutionsHandler.HandleStartResolution, "start_resolution")).Methods(http.MethodPost)
}

type ackResponse struct {
	Status string `json:"status"`
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

// writeStoreError translates store sentinels into HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrCollectionNotFound),
		errors.Is(err, repository.ErrEntityNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrDuplicateEntity):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

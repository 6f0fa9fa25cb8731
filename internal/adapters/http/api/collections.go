package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/okian/rolloff/internal/domain/model"
)

// CollectionsHandler handles collection and entity requests.
type CollectionsHandler struct {
	deps Dependencies
}

// NewCollectionsHandler creates a new collections handler.
func NewCollectionsHandler(deps Dependencies) *CollectionsHandler {
	return &CollectionsHandler{deps: deps}
}

// entityRequest mirrors the JSON schema for POST .../entities.
type entityRequest struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Rank  *float64 `json:"rank"`
	Owner string   `json:"owner"`
	Seed  float64  `json:"seed"`
}

func (e entityRequest) validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrMissingEntityID
	}
	return nil
}

// rankRequest mirrors the JSON schema for PUT .../rank.
type rankRequest struct {
	Rank float64 `json:"rank"`
}

// HandleAddEntity handles POST /collections/{collection}/entities.
func (h *CollectionsHandler) HandleAddEntity(w http.ResponseWriter, r *http.Request) {
	collectionID := mux.Vars(r)["collection"]

	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	e := model.Entity{
		ID:    model.EntityID(req.ID),
		Name:  req.Name,
		Rank:  req.Rank,
		Owner: model.OwnerRef(req.Owner),
		Seed:  req.Seed,
	}
	if err := h.deps.AddEntity(r.Context(), collectionID, e); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ackResponse{Status: "created"})
}

// HandleListEntities handles GET /collections/{collection}/entities.
func (h *CollectionsHandler) HandleListEntities(w http.ResponseWriter, r *http.Request) {
	collectionID := mux.Vars(r)["collection"]
	entities, err := h.deps.Entities(r.Context(), collectionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities)
}

// HandleSetRank handles PUT /collections/{collection}/entities/{entity}/rank.
func (h *CollectionsHandler) HandleSetRank(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collectionID := vars["collection"]
	entityID := model.EntityID(vars["entity"])

	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.SetRank(r.Context(), collectionID, entityID, req.Rank); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "ok"})
}

// HandleStart handles POST /collections/{collection}/start.
func (h *CollectionsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	collectionID := mux.Vars(r)["collection"]
	if err := h.deps.StartCollection(r.Context(), collectionID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "started"})
}

// HandleDelete handles DELETE /collections/{collection}.
func (h *CollectionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	collectionID := mux.Vars(r)["collection"]
	if err := h.deps.DeleteCollection(r.Context(), collectionID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "deleted"})
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// ResolutionsHandler handles the manual resolution start path.
type ResolutionsHandler struct {
	deps Dependencies
}

// NewResolutionsHandler creates a new resolutions handler.
func NewResolutionsHandler(deps Dependencies) *ResolutionsHandler {
	return &ResolutionsHandler{deps: deps}
}

// HandleStartResolution handles POST /collections/{collection}/resolve.
// It starts resolution of ties that detection parked while auto-resolve
// was off.
func (h *ResolutionsHandler) HandleStartResolution(w http.ResponseWriter, r *http.Request) {
	collectionID := mux.Vars(r)["collection"]
	if err := h.deps.StartResolution(r.Context(), collectionID); err != nil {
		// Nothing parked is a client-state problem, not a server fault.
		writeError(w, http.StatusConflict, "no_pending_ties", err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "resolving"})
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListCollections lists every collection in the store.
func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.app.Store.ListCollections(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": names})
}

// handleDeleteCollection drops a collection and all its chunks. Deleting an
// unknown collection succeeds.
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.app.Store.DeleteCollection(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("collection deleted", "collection", name)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
}

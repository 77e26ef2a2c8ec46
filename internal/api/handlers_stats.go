package api

import (
	"net/http"
)

func (s *Server) handleEmbeddingStats(w http.ResponseWriter, r *http.Request) {
	if s.app.Stats == nil {
		jsonError(w, "embedding stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"model":       s.app.Batcher.Model(),
		"stats":       s.app.Stats.Snapshot(),
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}

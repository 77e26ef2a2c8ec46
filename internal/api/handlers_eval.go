package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/citewise/internal/eval"
)

type evalRequest struct {
	Queries     []eval.GoldenQuery `json:"queries"`
	Collections []string           `json:"collections"`
}

func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Queries) == 0 {
		jsonError(w, "at least one query is required", http.StatusBadRequest)
		return
	}

	records, err := s.app.Evaluator(req.Collections).Evaluate(r.Context(), req.Queries)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("evaluation run", "queries", len(records))

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"summary": eval.Summarize(records),
	})
}

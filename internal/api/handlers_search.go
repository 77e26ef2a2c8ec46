package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/citewise/internal/query"
)

type searchRequest struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k"`
	Collections []string `json:"collections"`
}

type searchResult struct {
	query.Hit
	Formatted string `json:"formatted"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.TopK == 0 {
		req.TopK = s.cfg.DefaultTopK
	}

	collections := req.Collections
	if len(collections) == 0 {
		all, err := s.app.Store.ListCollections(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		collections = all
	}

	results := []searchResult{}
	if len(collections) > 0 {
		hits, err := s.app.Engine.SearchWithChunks(r.Context(), req.Query, req.TopK, collections)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, h := range hits {
			results = append(results, searchResult{Hit: h, Formatted: query.FormatCitation(h.QueryResult)})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":       req.Query,
		"top_k":       req.TopK,
		"collections": collections,
		"results":     results,
	})
}

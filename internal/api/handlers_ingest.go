package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/parser"
	"github.com/dgallion1/citewise/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	req := pipeline.IngestRequest{
		Source:     r.FormValue("source"),
		Collection: r.FormValue("collection"),
		Filename:   filename,
		Data:       data,
	}
	source, collection, err := req.Names()
	if err != nil {
		writeError(w, err)
		return
	}

	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		report, err := s.orchestrator.Pipeline().Ingest(r.Context(), req)
		if err != nil {
			s.log.Error("sync ingest failed", "filename", filename, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	job := pipeline.NewJob(filename, source, collection, data)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"source":     job.Source,
		"collection": job.Collection,
		"status":     pipeline.StatusQueued,
		"poll_url":   fmt.Sprintf("/api/ingest/%s/status", job.ID),
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}
	collection := r.FormValue("collection")

	var results []map[string]any
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		if !parser.IsSupportedExtension(filename) {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)),
			})
			continue
		}

		data, err := s.readPart(fh)
		if err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		req := pipeline.IngestRequest{Collection: collection, Filename: filename, Data: data}
		source, coll, err := req.Names()
		if err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		job := pipeline.NewJob(filename, source, coll, data)
		if err := s.orchestrator.Submit(job); err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		results = append(results, map[string]any{
			"filename":   filename,
			"job_id":     job.ID,
			"source":     source,
			"collection": coll,
			"status":     pipeline.StatusQueued,
			"poll_url":   fmt.Sprintf("/api/ingest/%s/status", job.ID),
		})
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

func (s *Server) readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New("failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil || int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, errors.New("file too large or read error")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeError maps pipeline and query errors to a status code.
func writeError(w http.ResponseWriter, err error) {
	jsonError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}

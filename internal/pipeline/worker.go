package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Worker processes a single document job.
type Worker struct {
	pipeline *Pipeline
	log      *slog.Logger
}

func NewWorker(p *Pipeline, log *slog.Logger) *Worker {
	return &Worker{pipeline: p, log: log}
}

// Process runs the full ingest pipeline for a job and records the outcome
// on it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	started := time.Now()

	phase := string(StatusQueued)
	report, err := w.pipeline.Ingest(ctx, IngestRequest{
		Source:     job.Source,
		Collection: job.Collection,
		Filename:   job.Filename,
		Data:       job.FileData(),
		OnPhase: func(s JobStatus) {
			phase = string(s)
			job.SetStatus(s, phase)
			log.Debug("phase started", "phase", phase)
		},
	})
	if err != nil {
		log.Error("ingest failed", "phase", phase, "error", err)
		job.Fail(phase, err)
		return
	}

	job.Finish(report)
	if report.Skipped {
		log.Info("duplicate document, skipping", "source", report.Source, "collection", report.Collection)
		return
	}
	log.Info("ingest complete",
		"source", report.Source,
		"collection", report.Collection,
		"pages", report.PagesProcessed,
		"chunks", report.ChunksWritten,
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

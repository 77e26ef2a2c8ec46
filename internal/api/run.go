package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgallion1/citewise/internal/app"
	"github.com/dgallion1/citewise/internal/pipeline"
)

// Run starts the ingestion workers and serves the API on the configured
// port until ctx is cancelled, then drains both.
func Run(ctx context.Context, a *app.App, log *slog.Logger) error {
	cfg := a.Config

	orch := pipeline.NewOrchestrator(a.Pipeline, pipeline.OrchestratorConfig{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.JobTTL,
	}, log)
	orch.Start(ctx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      NewServer(a, orch, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting citewise",
			"port", cfg.Port,
			"vector_store", cfg.VectorStore,
			"embedding_provider", cfg.EmbeddingProvider,
			"embedding_model", a.Batcher.Model(),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = httpServer.Shutdown(shutdownCtx)
	}
	orch.Stop()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

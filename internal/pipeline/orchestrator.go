package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// OrchestratorConfig sizes the background ingestion pool.
type OrchestratorConfig struct {
	WorkerCount  int
	MaxQueueSize int
	JobTTL       time.Duration
}

// Orchestrator runs ingestion jobs on a pool of workers so uploads can
// return before a document is stored.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	pipeline *Pipeline
	log      *slog.Logger
	cfg      OrchestratorConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline pool. Call Start to run it.
func NewOrchestrator(p *Pipeline, cfg OrchestratorConfig, log *slog.Logger) *Orchestrator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		pipeline: p,
		log:      log,
		cfg:      cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.pipeline, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.Fail("queue_full", fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize))
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Pipeline returns the pipeline for synchronous use by API handlers.
func (o *Orchestrator) Pipeline() *Pipeline {
	return o.pipeline
}

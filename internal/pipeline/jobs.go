package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/google/uuid"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusExtracting JobStatus = "extracting"
	StatusChunking   JobStatus = "chunking"
	StatusEmbedding  JobStatus = "embedding"
	StatusStoring    JobStatus = "storing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDupSkipped
}

// Job tracks the state of a single document ingestion.
type Job struct {
	mu sync.Mutex

	ID         string
	Source     string
	Collection string
	Filename   string

	Status JobStatus
	Phase  string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Internal: not serialized.
	fileData []byte
	report   *domain.IngestionReport
	errors   []string
}

// NewJob creates a queued job for one uploaded file. Job ids are UUIDv7, so
// they sort by creation time.
func NewJob(filename, source, collection string, data []byte) *Job {
	now := time.Now()
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Job{
		ID:         id.String(),
		Source:     source,
		Collection: collection,
		Filename:   filename,
		Status:     StatusQueued,
		Phase:      "queued",
		CreatedAt:  now,
		UpdatedAt:  now,
		fileData:   data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes jobs that have not changed within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// Finish records the ingestion report and the terminal status it implies.
func (j *Job) Finish(report domain.IngestionReport) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.report = &report
	j.Source = report.Source
	j.Collection = report.Collection
	if report.Skipped {
		j.Status = StatusDupSkipped
		j.Phase = "dedup"
	} else {
		j.Status = StatusCompleted
		j.Phase = "done"
	}
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// Fail records err and marks the job failed in phase.
func (j *Job) Fail(phase string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err.Error())
	j.Status = StatusFailed
	j.Phase = phase
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID         string                  `json:"job_id"`
	Source     string                  `json:"source"`
	Collection string                  `json:"collection"`
	Filename   string                  `json:"filename"`
	Status     JobStatus               `json:"status"`
	Phase      string                  `json:"phase"`
	Report     *domain.IngestionReport `json:"report,omitempty"`
	Errors     []string                `json:"errors"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	var report *domain.IngestionReport
	if j.report != nil {
		r := *j.report
		report = &r
	}
	return JobSnapshot{
		ID:         j.ID,
		Source:     j.Source,
		Collection: j.Collection,
		Filename:   j.Filename,
		Status:     j.Status,
		Phase:      j.Phase,
		Report:     report,
		Errors:     errs,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/google/uuid"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	if ContentHashHex([]byte("aaa")) == ContentHashHex([]byte("bbb")) {
		t.Error("expected different hashes for different inputs")
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("report.pdf", "report", "", []byte("%PDF"))
	if _, err := uuid.Parse(job.ID); err != nil {
		t.Fatalf("expected uuid job id, got %q: %v", job.ID, err)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if string(job.FileData()) != "%PDF" {
		t.Errorf("expected file data to be kept until processing")
	}

	other := NewJob("report.pdf", "report", "", nil)
	if other.ID == job.ID {
		t.Error("expected distinct job ids")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{ID: "test-1", Status: StatusQueued, UpdatedAt: time.Now()}

	for _, status := range []JobStatus{StatusExtracting, StatusChunking, StatusEmbedding, StatusStoring} {
		before := job.UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStatus(status, string(status))

		if job.Status != status {
			t.Errorf("expected status %q, got %q", status, job.Status)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", status)
		}
		if status.Done() {
			t.Errorf("%q should not be terminal", status)
		}
	}
}

func TestJob_Finish(t *testing.T) {
	job := NewJob("a.pdf", "", "", []byte("data"))
	job.Finish(domain.IngestionReport{Source: "a", Collection: "a", ChunksWritten: 7, PagesProcessed: 3})

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", snap.Status)
	}
	if snap.Report == nil || snap.Report.ChunksWritten != 7 {
		t.Fatalf("expected report with 7 chunks, got %+v", snap.Report)
	}
	if snap.Source != "a" || snap.Collection != "a" {
		t.Errorf("expected resolved names on the job, got %q/%q", snap.Source, snap.Collection)
	}
	if job.FileData() != nil {
		t.Error("expected file data to be released")
	}

	dup := NewJob("a.pdf", "", "", []byte("data"))
	dup.Finish(domain.IngestionReport{Source: "a", Collection: "a", Skipped: true})
	if dup.Snapshot().Status != StatusDupSkipped {
		t.Errorf("expected %q, got %q", StatusDupSkipped, dup.Snapshot().Status)
	}
}

func TestJob_Fail(t *testing.T) {
	job := NewJob("a.pdf", "", "", []byte("data"))
	job.Fail(string(StatusEmbedding), errors.New("model down"))

	snap := job.Snapshot()
	if snap.Status != StatusFailed || !snap.Status.Done() {
		t.Errorf("expected terminal failed status, got %q", snap.Status)
	}
	if snap.Phase != "embedding" {
		t.Errorf("expected phase embedding, got %q", snap.Phase)
	}
	if len(snap.Errors) != 1 || snap.Errors[0] != "model down" {
		t.Errorf("unexpected errors %v", snap.Errors)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if snap.Report != nil {
		t.Error("expected no report before the job finishes")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 job left, got %d", store.Len())
	}
}

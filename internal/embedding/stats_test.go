package embedding

import (
	"testing"
	"time"
)

func TestStatsSnapshotPercentiles(t *testing.T) {
	stats := NewStats(time.Hour)
	for _, v := range []int64{100, 200, 300, 400, 500} {
		stats.Record(v, false)
	}
	stats.Record(600, true)

	s := stats.Snapshot()
	if s.Count != 6 {
		t.Fatalf("count: want 6, got %d", s.Count)
	}
	if s.Errors != 1 {
		t.Fatalf("errors: want 1, got %d", s.Errors)
	}
	if s.MinMs != 100 || s.MaxMs != 600 {
		t.Fatalf("min/max: want 100/600, got %d/%d", s.MinMs, s.MaxMs)
	}
	if s.AvgMs != 350 {
		t.Fatalf("avg: want 350, got %.2f", s.AvgMs)
	}
	if s.P50Ms != 350 {
		t.Fatalf("p50: want 350, got %.2f", s.P50Ms)
	}
	if s.P95Ms != 575 {
		t.Fatalf("p95: want 575, got %.2f", s.P95Ms)
	}
}

func TestStatsPrunesOldSamples(t *testing.T) {
	stats := NewStats(time.Minute)
	stats.samples = append(stats.samples,
		sample{timestamp: time.Now().Add(-2 * time.Minute), durationMs: 999},
		sample{timestamp: time.Now(), durationMs: 50},
	)

	s := stats.Snapshot()
	if s.Count != 1 {
		t.Fatalf("count: want 1, got %d", s.Count)
	}
	if s.MaxMs != 50 {
		t.Fatalf("max: want 50, got %d", s.MaxMs)
	}
}

func TestStatsEmpty(t *testing.T) {
	if s := NewStats(0).Snapshot(); s.Count != 0 {
		t.Fatalf("want empty snapshot, got %+v", s)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&RetryableError{StatusCode: 429}) {
		t.Error("429 should be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := Backoff(attempt)
		if d < time.Second || d > 45*time.Second {
			t.Errorf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}

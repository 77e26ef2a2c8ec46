package embedding

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
	failed     bool
}

// StatsSnapshot is a point-in-time aggregate of embedding call latencies.
type StatsSnapshot struct {
	Count  int     `json:"count"`
	Errors int     `json:"errors"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// Stats tracks recent embedding call latencies within a rolling window.
type Stats struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewStats(maxAge time.Duration) *Stats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Stats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

// Record adds one embedding call to the window.
func (s *Stats) Record(durationMs int64, failed bool) {
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, sample{
		timestamp:  now,
		durationMs: durationMs,
		failed:     failed,
	})
}

func (s *Stats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if len(s.samples) == 0 {
		return StatsSnapshot{}
	}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	errs := 0
	for _, sm := range s.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
		if sm.failed {
			errs++
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return StatsSnapshot{
		Count:  len(values),
		Errors: errs,
		MinMs:  values[0],
		MaxMs:  values[len(values)-1],
		AvgMs:  float64(sum) / float64(len(values)),
		P50Ms:  percentile(values, 50),
		P95Ms:  percentile(values, 95),
		P99Ms:  percentile(values, 99),
	}
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	keep := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.timestamp.Before(cutoff) {
			keep = append(keep, sm)
		}
	}
	s.samples = keep
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []int64, pct float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[n-1])
	}

	rank := float64(n-1) * pct / 100
	lower := int(rank)
	if lower+1 >= n {
		return float64(sorted[lower])
	}
	frac := rank - float64(lower)
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*frac
}

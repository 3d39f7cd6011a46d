package observe

import (
	"math"
	"slices"
	"sync"
	"time"
)

// DefaultReplyWindow is the number of latency samples kept by
// [NewReplyStats] when given a non-positive size.
const DefaultReplyWindow = 100

// ReplyStats keeps an in-process view of reply generation for the admin
// panel: a bounded window of recent latencies plus running counters since
// start. It complements the Prometheus instruments, which need a scraper to
// be read.
//
// Safe for concurrent use.
type ReplyStats struct {
	mu      sync.Mutex
	window  latencyWindow
	replies int64
	failed  int64
}

// Percentiles holds p50 and p95 of a latency window.
type Percentiles struct {
	P50 time.Duration
	P95 time.Duration
}

// ReplySnapshot is a point-in-time copy of [ReplyStats].
type ReplySnapshot struct {
	Replies int64
	Failed  int64
	Latency Percentiles
}

// NewReplyStats keeps the last size latency samples.
func NewReplyStats(size int) *ReplyStats {
	if size <= 0 {
		size = DefaultReplyWindow
	}
	return &ReplyStats{window: latencyWindow{data: make([]time.Duration, size)}}
}

// Record counts one reply that took d. Failed replies are also counted
// separately; their latency enters the window like any other.
func (rs *ReplyStats) Record(d time.Duration, failed bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.replies++
	if failed {
		rs.failed++
	}
	rs.window.add(d)
}

// Snapshot returns the current counters and latency percentiles.
func (rs *ReplyStats) Snapshot() ReplySnapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return ReplySnapshot{
		Replies: rs.replies,
		Failed:  rs.failed,
		Latency: rs.window.percentiles(),
	}
}

// latencyWindow is a ring buffer of duration samples.
type latencyWindow struct {
	data []time.Duration
	pos  int
	full bool
}

func (w *latencyWindow) add(d time.Duration) {
	w.data[w.pos] = d
	w.pos++
	if w.pos == len(w.data) {
		w.pos = 0
		w.full = true
	}
}

func (w *latencyWindow) percentiles() Percentiles {
	n := w.pos
	if w.full {
		n = len(w.data)
	}
	if n == 0 {
		return Percentiles{}
	}
	sorted := slices.Clone(w.data[:n])
	slices.Sort(sorted)
	return Percentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
	}
}

// percentile returns the nearest-rank value at p (0.0-1.0) of sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

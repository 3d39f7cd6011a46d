// Package warmth tracks per-user interaction counts for the rule-based reply
// path and derives the discrete warmth tier that gates which reply pool is
// eligible.
//
// Counts live only for the lifetime of the process. They are deliberately
// separate from the durable message count kept by the persistence layer,
// which the remote delegate path reads instead; after a restart the two can
// disagree.
package warmth

import "sync"

const (
	// BucketSize is the number of interactions per tier step.
	BucketSize = 10

	// MaxTier is the highest reachable tier.
	MaxTier = 3
)

// Tier maps an interaction count to a tier in [0, MaxTier].
// It is monotonic non-decreasing in count.
func Tier(count int) int {
	if count <= 0 {
		return 0
	}
	return min(count/BucketSize, MaxTier)
}

// Tracker is an in-memory interaction counter keyed by user. It is safe for
// concurrent use; the read-increment-write for a key is atomic.
//
// The zero value is not usable; construct with [NewTracker].
type Tracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{counts: make(map[string]int)}
}

// RecordInteraction increments the counter for userKey (starting from 0 for an
// unseen key) and returns the tier of the new count.
func (t *Tracker) RecordInteraction(userKey string) int {
	t.mu.Lock()
	n := t.counts[userKey] + 1
	t.counts[userKey] = n
	t.mu.Unlock()
	return Tier(n)
}

// Count returns the current count for userKey without modifying it.
func (t *Tracker) Count(userKey string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userKey]
}

// Len returns the number of distinct keys seen so far.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}

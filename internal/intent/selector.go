package intent

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/MrWong99/mikubot/internal/warmth"
)

// Selector picks a reply for a classified intent. It is safe for concurrent
// use.
type Selector struct {
	replies Replies

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector validates replies and returns a Selector drawing from src. A
// nil src uses a randomly seeded PCG source.
func NewSelector(replies Replies, src rand.Source) (*Selector, error) {
	if err := replies.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	cp := Replies{
		Tiered: make(map[Tag][][]string, len(replies.Tiered)),
		Flat:   make(map[Tag][]string, len(replies.Flat)),
	}
	for tag, sets := range replies.Tiered {
		cs := make([][]string, len(sets))
		for i, s := range sets {
			cs[i] = slices.Clone(s)
		}
		cp.Tiered[tag] = cs
	}
	for tag, set := range replies.Flat {
		cp.Flat[tag] = slices.Clone(set)
	}
	return &Selector{replies: cp, rnd: rand.New(src)}, nil
}

// Select returns one candidate for tag, uniformly at random. tier only
// matters for tiered tags and is clamped to [0, warmth.MaxTier]. An unknown
// tag selects from the [Default] set.
func (s *Selector) Select(tag Tag, tier int) string {
	set := s.Candidates(tag, tier)
	s.mu.Lock()
	i := s.rnd.IntN(len(set))
	s.mu.Unlock()
	return set[i]
}

// Candidates returns the candidate set Select would draw from. The returned
// slice must not be modified.
func (s *Selector) Candidates(tag Tag, tier int) []string {
	if set, ok := s.replies.Flat[tag]; ok {
		return set
	}
	if !tag.Tiered() {
		tag = Default
	}
	tier = max(0, min(tier, warmth.MaxTier))
	return s.replies.Tiered[tag][tier]
}

// Package orchestrator produces Miku's answer to one message: the reply text
// from the configured backend, the emotion category of the exchange, and
// access to the sticker for that category.
//
// A delegate failure never reaches the user. The orchestrator substitutes the
// persona fallback line, marks the reply as failed and records the failure
// kind.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/mikubot/internal/emotion"
	"github.com/MrWong99/mikubot/internal/engine"
	"github.com/MrWong99/mikubot/internal/observe"
	"github.com/MrWong99/mikubot/internal/persona"
	"github.com/MrWong99/mikubot/internal/sticker"
	"github.com/MrWong99/mikubot/internal/warmth"
	"github.com/MrWong99/mikubot/pkg/provider/llm"
)

// Request is one message to answer.
type Request = engine.Request

// Reply is the orchestrated answer.
type Reply struct {
	// Text is the reply to send. Never empty.
	Text string

	// Category is the emotion category of the exchange.
	Category emotion.Category

	// Backend is the backend that produced Text.
	Backend engine.Kind

	// Intent and Tier are copied from the backend result.
	Intent string
	Tier   int

	// Failed is set when Text is the fallback line; Failure says why.
	Failed  bool
	Failure llm.FailureKind
}

// Orchestrator is safe for concurrent use. It holds no lock while the
// backend runs.
type Orchestrator struct {
	backend  engine.Backend
	detector *emotion.Detector
	media    *sticker.Selector
	metrics  *observe.Metrics
	stats    *observe.ReplyStats
	now      func() time.Time
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithStats sets the in-process reply statistics.
func WithStats(rs *observe.ReplyStats) Option {
	return func(o *Orchestrator) { o.stats = rs }
}

// WithDetector replaces the emotion detector.
func WithDetector(d *emotion.Detector) Option {
	return func(o *Orchestrator) { o.detector = d }
}

// New returns an Orchestrator over backend and media.
func New(backend engine.Backend, media *sticker.Selector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		media:   media,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.detector == nil {
		o.detector = emotion.NewDetector()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.stats == nil {
		o.stats = observe.NewReplyStats(observe.DefaultReplyWindow)
	}
	return o
}

// Backend reports which backend is configured.
func (o *Orchestrator) Backend() engine.Kind { return o.backend.Kind() }

// Respond answers req. It always returns a sendable reply. Cancelling ctx
// aborts an in-flight delegate call, which then yields the fallback line.
func (o *Orchestrator) Respond(ctx context.Context, req Request) Reply {
	start := o.now()
	kind := o.backend.Kind()
	res, err := o.backend.Generate(ctx, req)
	elapsed := o.now().Sub(start)

	reply := Reply{Backend: kind, Intent: res.Intent, Tier: res.Tier, Text: res.Text}
	if err != nil {
		reply.Failed = true
		reply.Failure = llm.KindOf(err)
		reply.Text = persona.Fallback
		reply.Intent, reply.Tier = "", -1
		observe.Logger(ctx).Warn("backend failed, sending fallback reply",
			"backend", kind,
			"user", req.UserKey,
			"kind", reply.Failure,
			"elapsed", elapsed,
			"err", err,
		)
		o.metrics.RecordDelegateFailure(ctx, string(reply.Failure))
	}
	reply.Category = o.detector.Detect(req.Text, reply.Text)

	o.stats.Record(elapsed, reply.Failed)
	o.metrics.RecordBackend(ctx, string(kind), reply.Failed, elapsed.Seconds())
	o.metrics.RecordCategory(ctx, string(reply.Category))
	if reply.Intent != "" {
		o.metrics.RecordIntent(ctx, reply.Intent, reply.Tier)
	}
	if t := o.tracker(); t != nil {
		o.metrics.ActiveUsers.Record(ctx, int64(t.Len()))
	}

	observe.Logger(ctx).Debug("reply generated",
		"backend", kind,
		"user", req.UserKey,
		"intent", reply.Intent,
		"tier", reply.Tier,
		"category", reply.Category,
		"elapsed", elapsed,
	)
	return reply
}

// Stats returns reply counters and recent latency since start.
func (o *Orchestrator) Stats() observe.ReplySnapshot { return o.stats.Snapshot() }

// PickMedia returns a sticker id for category, falling back to the cool
// category, or "" when neither has stickers.
func (o *Orchestrator) PickMedia(category emotion.Category) string {
	if o.media == nil {
		return ""
	}
	return o.media.Pick(string(category))
}

// ReloadMedia re-reads the sticker table. On failure the previous table stays
// live.
func (o *Orchestrator) ReloadMedia() (int, error) {
	if o.media == nil {
		return 0, errors.New("orchestrator: no sticker table configured")
	}
	n, err := o.media.Reload()
	if err != nil {
		slog.Warn("sticker reload failed, keeping previous table", "err", err)
		return 0, err
	}
	slog.Info("sticker table reloaded", "categories", n)
	return n, nil
}

// ReplaceMedia installs data as the new sticker table and persists it.
func (o *Orchestrator) ReplaceMedia(data []byte) (int, error) {
	if o.media == nil {
		return 0, errors.New("orchestrator: no sticker table configured")
	}
	return o.media.Replace(data)
}

// MediaGuide returns the admin guide for the sticker table.
func (o *Orchestrator) MediaGuide() string {
	if o.media == nil {
		return ""
	}
	return o.media.Guide()
}

// MediaPath returns the sticker table file.
func (o *Orchestrator) MediaPath() string {
	if o.media == nil {
		return ""
	}
	return o.media.Path()
}

// MediaCategories returns the number of loaded sticker categories.
func (o *Orchestrator) MediaCategories() int {
	if o.media == nil {
		return 0
	}
	return o.media.Len()
}

// tracker returns the warmth tracker of a rule-based backend, if any.
func (o *Orchestrator) tracker() *warmth.Tracker {
	if tb, ok := o.backend.(interface{ Tracker() *warmth.Tracker }); ok {
		return tb.Tracker()
	}
	return nil
}

// Package rulebased implements the local engine.Backend: count the
// interaction, classify the message by keywords, and pick a canned reply for
// the intent at the user's current warmth tier. It performs no I/O.
package rulebased

import (
	"context"

	"github.com/MrWong99/mikubot/internal/engine"
	"github.com/MrWong99/mikubot/internal/intent"
	"github.com/MrWong99/mikubot/internal/warmth"
)

// Engine is the rule-based backend.
type Engine struct {
	tracker    *warmth.Tracker
	classifier *intent.Classifier
	selector   *intent.Selector
}

var _ engine.Backend = (*Engine)(nil)

// New returns an Engine over the given collaborators. The tracker is owned by
// the caller so tests and the admin surface can inspect it.
func New(tracker *warmth.Tracker, classifier *intent.Classifier, selector *intent.Selector) *Engine {
	return &Engine{tracker: tracker, classifier: classifier, selector: selector}
}

// Kind implements engine.Backend.
func (e *Engine) Kind() engine.Kind { return engine.KindRuleBased }

// Generate implements engine.Backend. It never fails; ctx is ignored because
// the work is local and bounded.
func (e *Engine) Generate(_ context.Context, req engine.Request) (engine.Result, error) {
	tier := e.tracker.RecordInteraction(req.UserKey)
	tag := e.classifier.Classify(req.Text)
	return engine.Result{
		Text:   e.selector.Select(tag, tier),
		Intent: string(tag),
		Tier:   tier,
	}, nil
}

// Tracker returns the warmth tracker.
func (e *Engine) Tracker() *warmth.Tracker { return e.tracker }

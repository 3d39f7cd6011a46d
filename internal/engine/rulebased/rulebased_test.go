package rulebased_test

import (
	"context"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/MrWong99/mikubot/internal/engine"
	"github.com/MrWong99/mikubot/internal/engine/rulebased"
	"github.com/MrWong99/mikubot/internal/intent"
	"github.com/MrWong99/mikubot/internal/warmth"
)

func newEngine(t *testing.T) *rulebased.Engine {
	t.Helper()
	sel, err := intent.NewSelector(intent.DefaultReplies(), rand.NewPCG(1, 2))
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	return rulebased.New(warmth.NewTracker(), intent.NewClassifier(), sel)
}

func TestGenerate_FirstGreetingIsCold(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	res, err := e.Generate(context.Background(), engine.Request{UserKey: "u1", Text: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	cold := intent.DefaultReplies().Tiered[intent.Greeting][0]
	if !slices.Contains(cold, res.Text) {
		t.Errorf("Text = %q, not a cold greeting", res.Text)
	}
	if res.Intent != string(intent.Greeting) || res.Tier != 0 {
		t.Errorf("Intent = %q, Tier = %d", res.Intent, res.Tier)
	}
	if e.Kind() != engine.KindRuleBased {
		t.Errorf("Kind = %q", e.Kind())
	}
}

func TestGenerate_WarmsUpPerUser(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	ctx := context.Background()
	var last engine.Result
	for range 30 {
		last, _ = e.Generate(ctx, engine.Request{UserKey: "regular", Text: "hello"})
	}
	if last.Tier != 3 {
		t.Fatalf("tier after 30 messages = %d, want 3", last.Tier)
	}
	warm := intent.DefaultReplies().Tiered[intent.Greeting][3]
	if !slices.Contains(warm, last.Text) {
		t.Errorf("Text = %q, not a tier-3 greeting", last.Text)
	}

	stranger, _ := e.Generate(ctx, engine.Request{UserKey: "stranger", Text: "hello"})
	if stranger.Tier != 0 {
		t.Errorf("stranger tier = %d, want 0", stranger.Tier)
	}
	if got := e.Tracker().Count("regular"); got != 30 {
		t.Errorf("Count = %d, want 30", got)
	}
}

func TestGenerate_FlatIntentIgnoresTier(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	flat := intent.DefaultReplies().Flat[intent.Question]
	for range 15 {
		res, _ := e.Generate(context.Background(), engine.Request{UserKey: "q", Text: "Kya chahiye tumhe?"})
		if !slices.Contains(flat, res.Text) {
			t.Fatalf("Text = %q, not a question reply", res.Text)
		}
	}
}

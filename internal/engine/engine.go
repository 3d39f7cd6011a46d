// Package engine defines the Backend interface that turns one user message
// into Miku's reply text, and the types shared by its implementations.
//
// Two implementations exist: [rulebased] answers locally from keyword rules
// and canned replies, and [delegate] asks a remote language model. The
// orchestrator picks one at startup from configuration and treats both the
// same way.
//
// [rulebased]: github.com/MrWong99/mikubot/internal/engine/rulebased
// [delegate]: github.com/MrWong99/mikubot/internal/engine/delegate
package engine

import (
	"context"
	"fmt"
	"time"
)

// Kind names a backend implementation in configuration.
type Kind string

const (
	KindRuleBased Kind = "rule-based"
	KindDelegate  Kind = "delegate"
)

// ParseKind maps a configuration value to a Kind. The legacy
// provider names "groq" and "cohere" select the delegate.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", string(KindRuleBased), "rulebased", "local":
		return KindRuleBased, nil
	case string(KindDelegate), "groq", "cohere", "llm":
		return KindDelegate, nil
	default:
		return "", fmt.Errorf("engine: unknown backend %q", s)
	}
}

// Exchange is one persisted message/reply pair.
type Exchange struct {
	Message   string
	Response  string
	Timestamp time.Time
}

// Request is everything a backend may use to answer one message.
type Request struct {
	// UserKey identifies the user; warmth counters are keyed by it.
	UserKey string

	// Text is the user's message.
	Text string

	// DisplayName is how the user is addressed.
	DisplayName string

	// History holds earlier exchanges, newest first, as the store returns
	// them.
	History []Exchange

	// PersistedCount is the durable message count for the user, including
	// the current message.
	PersistedCount int
}

// Result is a backend's answer.
type Result struct {
	// Text is the reply to send.
	Text string

	// Intent is the classified intent tag. Only the rule-based backend sets
	// it.
	Intent string

	// Tier is the warmth tier the reply was chosen for, or -1 when the
	// backend does not compute one.
	Tier int
}

// Backend produces a reply for one message.
//
// Implementations must be safe for concurrent use. Generate must respect ctx
// cancellation for any I/O it performs.
type Backend interface {
	// Kind reports which implementation this is.
	Kind() Kind

	// Generate returns the reply for req. Errors are only possible for
	// backends that perform I/O.
	Generate(ctx context.Context, req Request) (Result, error)
}

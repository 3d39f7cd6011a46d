// Package mock provides a recording [chat.Sender] for unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mikubot/internal/chat"
)

var _ chat.Sender = (*Sender)(nil)

// SendCall records one SendDirect invocation.
type SendCall struct {
	UserID string
	Text   string
}

// Sender records direct messages. Users listed in Fail get an error.
type Sender struct {
	mu    sync.Mutex
	calls []SendCall

	// Fail maps user ids to the error returned for them.
	Fail map[string]error
}

// SendDirect implements chat.Sender.
func (s *Sender) SendDirect(_ context.Context, userID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, SendCall{UserID: userID, Text: text})
	return s.Fail[userID]
}

// Calls returns a snapshot of the recorded sends.
func (s *Sender) Calls() []SendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SendCall, len(s.calls))
	copy(out, s.calls)
	return out
}

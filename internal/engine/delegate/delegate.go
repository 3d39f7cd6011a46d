// Package delegate implements the engine.Backend that asks a remote language
// model for the reply.
//
// The prompt is the persona system prompt plus a note carrying the user's
// durable message count, followed by a bounded window of recent exchanges
// (oldest first) and the new message. Every call runs under a fixed timeout.
package delegate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/mikubot/internal/engine"
	"github.com/MrWong99/mikubot/internal/persona"
	"github.com/MrWong99/mikubot/pkg/provider/llm"
)

// Defaults match the sampling the persona was tuned with.
const (
	DefaultHistoryLimit     = 6
	DefaultTimeout          = 30 * time.Second
	DefaultMaxTokens        = 200
	DefaultTemperature      = 0.85
	DefaultTopP             = 0.95
	DefaultFrequencyPenalty = 0.3
	DefaultPresencePenalty  = 0.2
)

// Engine is the remote delegate backend.
type Engine struct {
	provider     llm.Provider
	systemPrompt string
	historyLimit int
	timeout      time.Duration
	sampling     llm.CompletionRequest
}

var _ engine.Backend = (*Engine)(nil)

// Option configures an [Engine].
type Option func(*Engine)

// WithSystemPrompt replaces the persona system prompt.
func WithSystemPrompt(p string) Option {
	return func(e *Engine) { e.systemPrompt = p }
}

// WithHistoryLimit sets how many past exchanges are sent. Zero sends none.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.historyLimit = n
		}
	}
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sampling.MaxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.sampling.Temperature = t }
}

// WithPenalties sets top-p and the frequency and presence penalties.
func WithPenalties(topP, frequency, presence float64) Option {
	return func(e *Engine) {
		e.sampling.TopP = topP
		e.sampling.FrequencyPenalty = frequency
		e.sampling.PresencePenalty = presence
	}
}

// New returns an Engine that calls provider.
func New(provider llm.Provider, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("delegate: provider must not be nil")
	}
	e := &Engine{
		provider:     provider,
		systemPrompt: persona.SystemPrompt(),
		historyLimit: DefaultHistoryLimit,
		timeout:      DefaultTimeout,
		sampling: llm.CompletionRequest{
			MaxTokens:        DefaultMaxTokens,
			Temperature:      DefaultTemperature,
			TopP:             DefaultTopP,
			FrequencyPenalty: DefaultFrequencyPenalty,
			PresencePenalty:  DefaultPresencePenalty,
		},
	}
	for _, o := range opts {
		o(e)
	}
	if caps := provider.Capabilities(); caps.MaxOutputTokens > 0 && e.sampling.MaxTokens > caps.MaxOutputTokens {
		e.sampling.MaxTokens = caps.MaxOutputTokens
	}
	return e, nil
}

// Kind implements engine.Backend.
func (e *Engine) Kind() engine.Kind { return engine.KindDelegate }

// Timeout returns the per-call deadline.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Generate implements engine.Backend. Every returned error carries one of
// llm.ErrTimeout, llm.ErrTransport or llm.ErrMalformed.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (engine.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.provider.Complete(ctx, e.BuildRequest(req))
	if err != nil {
		return engine.Result{}, llm.WrapCallError("delegate", err)
	}
	if resp == nil {
		return engine.Result{}, llm.Malformed("delegate", "nil response")
	}
	if err := llm.CheckContent("delegate", resp.Content); err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Text: resp.Content, Tier: -1}, nil
}

// BuildRequest assembles the completion request for req.
func (e *Engine) BuildRequest(req engine.Request) llm.CompletionRequest {
	out := e.sampling
	out.SystemPrompt = e.systemPrompt + persona.WarmthNote(req.PersistedCount)
	out.Messages = append(Window(req.History, e.historyLimit), llm.Message{Role: llm.RoleUser, Content: req.Text})
	return out
}

// Window converts the most recent limit exchanges of history (given newest
// first) into alternating user/assistant messages, oldest first.
func Window(history []engine.Exchange, limit int) []llm.Message {
	n := min(len(history), max(limit, 0))
	msgs := make([]llm.Message, 0, 2*n+1)
	for i := n - 1; i >= 0; i-- {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: history[i].Message},
			llm.Message{Role: llm.RoleAssistant, Content: history[i].Response},
		)
	}
	return msgs
}

// String describes the engine for logs.
func (e *Engine) String() string {
	return fmt.Sprintf("delegate(history=%d, timeout=%s, max_tokens=%d)", e.historyLimit, e.timeout, e.sampling.MaxTokens)
}

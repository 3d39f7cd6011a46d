// Package llm defines the Provider interface for the language-model backends
// that can generate Miku's replies.
//
// A provider wraps a remote chat-completion API (OpenAI, Groq, Cohere's
// compatibility endpoint, or anything reachable through any-llm-go) and
// exposes one blocking completion call. Every error a provider returns wraps
// exactly one of [ErrTimeout], [ErrTransport] or [ErrMalformed] so callers can
// tell the failure kinds apart with errors.Is.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn of conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text of the turn.
	Content string
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// Zero-valued sampling fields mean "provider default".
type CompletionRequest struct {
	// SystemPrompt is sent first, as a system-role message.
	SystemPrompt string

	// Messages is the conversation history, oldest first, ending with the
	// user message to answer.
	Messages []Message

	// MaxTokens caps the completion length.
	MaxTokens int

	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// ModelCapabilities describes static limits of the configured model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input plus output.
	ContextWindow int

	// MaxOutputTokens is the maximum completion length.
	MaxOutputTokens int
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the full reply. It returns promptly
	// when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns the model's static limits.
	Capabilities() ModelCapabilities
}

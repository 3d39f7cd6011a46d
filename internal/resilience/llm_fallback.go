package resilience

import (
	"context"

	"github.com/MrWong99/mikubot/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with failover across several
// backends, each behind its own circuit breaker.
//
// Errors keep their failure kind: when every backend fails, the returned
// error wraps [ErrAllFailed] and the last backend's llm sentinel.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	if err != nil {
		// Open breakers and a context that ended between attempts carry no
		// failure kind yet; WrapCallError adds one only when missing.
		return nil, llm.WrapCallError("resilience", err)
	}
	return resp, nil
}

// Capabilities returns the primary's capabilities.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	return f.group.Primary().Capabilities()
}

// States reports each backend's breaker state.
func (f *LLMFallback) States() map[string]State {
	return f.group.States()
}

// Package mock provides a recording implementation of [engine.Backend] for
// unit tests. It is safe for concurrent use.
//
// Example:
//
//	b := &mock.Backend{Result: engine.Result{Text: "...Hello."}}
//	res, err := b.Generate(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mikubot/internal/engine"
)

var _ engine.Backend = (*Backend)(nil)

// Backend is a mock implementation of [engine.Backend].
type Backend struct {
	mu sync.Mutex

	// BackendKind is returned by Kind. Defaults to engine.KindRuleBased.
	BackendKind engine.Kind

	// Result and Err are returned by Generate.
	Result engine.Result
	Err    error

	// GenerateFunc, if set, replaces Result and Err.
	GenerateFunc func(ctx context.Context, req engine.Request) (engine.Result, error)

	// Requests records every Generate call in order.
	Requests []engine.Request
}

// Kind implements engine.Backend.
func (b *Backend) Kind() engine.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.BackendKind == "" {
		return engine.KindRuleBased
	}
	return b.BackendKind
}

// Generate records req and returns the configured result.
func (b *Backend) Generate(ctx context.Context, req engine.Request) (engine.Result, error) {
	b.mu.Lock()
	b.Requests = append(b.Requests, req)
	fn, res, err := b.GenerateFunc, b.Result, b.Err
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

// Calls returns a snapshot of the recorded requests.
func (b *Backend) Calls() []engine.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]engine.Request, len(b.Requests))
	copy(out, b.Requests)
	return out
}

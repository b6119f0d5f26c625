package domain

import (
	"context"
	"slices"
	"sync"
)

type llmUsageKey struct{}

// LLMUsage collects orchestrator activity for a single HTTP request.
// The handler puts a pointer into the context before calling the service,
// the orchestrator records into it, and the handler reads it for response headers.
type LLMUsage struct {
	mu        sync.Mutex
	calls     int
	attempts  int
	providers []string
}

// NewContextWithUsage returns a context with an attached usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *LLMUsage) {
	u := &LLMUsage{}
	return context.WithValue(ctx, llmUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *LLMUsage {
	u, _ := ctx.Value(llmUsageKey{}).(*LLMUsage)
	return u
}

// Record adds one orchestrated call. Safe on a nil receiver and across goroutines.
func (u *LLMUsage) Record(r OperationResult) {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.attempts += r.Attempts
	if r.Provider != "" && !slices.Contains(u.providers, r.Provider) {
		u.providers = append(u.providers, r.Provider)
	}
}

// Snapshot returns call count, attempt count and distinct serving providers.
func (u *LLMUsage) Snapshot() (calls, attempts int, providers []string) {
	if u == nil {
		return 0, 0, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls, u.attempts, append([]string(nil), u.providers...)
}

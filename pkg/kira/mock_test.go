package kira

import (
	"context"
	"sync"

	"github.com/kira-labs/kira/internal/domain"
)

// --- provider mock ---

type mockProvider struct {
	name       string
	mu         sync.Mutex
	calls      int
	embedFn    func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	generateFn func(ctx context.Context, prompt string) (domain.GenerationResult, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.embedFn(ctx, text)
}

func (m *mockProvider) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.generateFn(ctx, prompt)
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockFactory serves pre-built providers by name and records which ones were built.
type mockFactory struct {
	providers map[string]*mockProvider
	built     []string
	seen      []domain.ProviderConfig
}

func (f *mockFactory) build(pc domain.ProviderConfig) domain.Provider {
	f.built = append(f.built, pc.Name)
	f.seen = append(f.seen, pc)
	return f.providers[pc.Name]
}

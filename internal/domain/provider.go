package domain

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Provider names in fixed preference order.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMega   = "mega"
)

// ProviderPreference is the order used for auto selection and fallback.
var ProviderPreference = []string{ProviderOpenAI, ProviderGemini, ProviderMega}

// ProviderConfig identifies one configured LLM vendor. Immutable after startup.
type ProviderConfig struct {
	Name              string
	BaseURL           string
	APIKey            string
	GenerationModel   string
	EmbeddingModel    string
	FallbackModels    []string
	Dimensions        int
	RequestsPerSecond float64
}

// HasCredential reports whether the provider can be selected at all.
func (c ProviderConfig) HasCredential() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// GenerationModels returns the primary generation model followed by the
// declared fallbacks, without duplicates and without blanks.
func (c ProviderConfig) GenerationModels() []string {
	models := make([]string, 0, 1+len(c.FallbackModels))
	for _, m := range append([]string{c.GenerationModel}, c.FallbackModels...) {
		m = strings.TrimSpace(m)
		if m == "" || slices.Contains(models, m) {
			continue
		}
		models = append(models, m)
	}
	return models
}

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// Generator is the shared text generation contract between layers.
type Generator interface {
	Generate(ctx context.Context, prompt string) (GenerationResult, error)
}

// Provider is one vendor adapter behind a uniform embed/generate signature.
type Provider interface {
	Name() string
	Embedder
	Generator
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector through the decorator chain.
type EmbeddingResult struct {
	Embedding   []float32
	Provider    string
	Model       string
	TotalTokens int
}

// GenerationResult carries generated text through the decorator chain.
type GenerationResult struct {
	Text     string
	Provider string
	Model    string
}

// Operation names a provider call kind; it doubles as a metrics label.
type Operation string

const (
	// OperationEmbedding produces a vector.
	OperationEmbedding Operation = "embedding"
	// OperationGeneration produces text.
	OperationGeneration Operation = "generation"
)

// OperationResult is the outcome of one orchestrated call: either a vector
// or text, the provider that produced it, and how long and how many attempts it took.
type OperationResult struct {
	Kind      Operation
	Embedding []float32
	Text      string
	Provider  string
	Model     string
	Duration  time.Duration
	Attempts  int
	Succeeded bool
	Err       error
}

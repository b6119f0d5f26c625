package kira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/config"
	"github.com/kira-labs/kira/internal/domain"
	geminiProvider "github.com/kira-labs/kira/internal/transport/gemini"
	openaiProvider "github.com/kira-labs/kira/internal/transport/openai"
	"github.com/kira-labs/kira/internal/usecase/llm"
	"github.com/kira-labs/kira/internal/usecase/ranking"
	"github.com/kira-labs/kira/internal/usecase/structured"
)

var defaultRetry = llm.RetryConfig{
	Timeout:    25 * time.Second,
	MaxRetries: 2,
	Backoff:    200 * time.Millisecond,
}

// Internal interfaces, swapped in tests.
type llmUseCase interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
	Generate(ctx context.Context, prompt string) (domain.GenerationResult, error)
	GenerateJSON(ctx context.Context, prompt string) (structured.Object, error)
	HealthCheck(ctx context.Context) error
	Primary() string
	Order() []string
}

type rankUseCase interface {
	Rank(ctx context.Context, query string, records []domain.GazetteRecord) domain.RankedAnswer
}

// Client is the Kira SDK entry point. It is safe for concurrent use.
type Client struct {
	llm    llmUseCase
	ranker rankUseCase
	obs    *observer
}

// New creates a Client. At least one provider must be configured; whether it
// can serve calls is checked at call time.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		mode:  llm.ModeAuto,
		retry: defaultRetry,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.providers) == 0 {
		return nil, errors.New("kira: provider required (use WithOpenAI, WithGemini, WithMega or WithProvider)")
	}
	if cfg.retry.MaxRetries < 0 {
		return nil, fmt.Errorf("kira: max retries must not be negative, got %d", cfg.retry.MaxRetries)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	return wireClient(cfg, obs), nil
}

func wireClient(cfg *clientConfig, obs *observer) *Client {
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := cfg.factory
	if factory == nil {
		factory = defaultFactory(logger)
	}

	client := llm.NewClient(cfg.mode, providerConfigs(cfg.providers), factory, cfg.retry, logger)
	return &Client{
		llm:    client,
		ranker: ranking.NewRanker(client, cfg.ranking, logger),
		obs:    obs,
	}
}

func defaultFactory(logger *zap.Logger) llm.Factory {
	return func(pc domain.ProviderConfig) domain.Provider {
		if pc.Name == domain.ProviderGemini {
			return geminiProvider.NewProvider(pc, logger)
		}
		return openaiProvider.NewProvider(pc, logger)
	}
}

func providerConfigs(settings map[string]ProviderSettings) []domain.ProviderConfig {
	out := make([]domain.ProviderConfig, 0, len(settings))
	for _, name := range domain.ProviderPreference {
		s, ok := settings[name]
		if !ok {
			continue
		}
		p := config.ProviderDefaults(name, config.ProviderConfig{
			APIKey:            s.APIKey,
			BaseURL:           s.BaseURL,
			GenerationModel:   s.GenerationModel,
			EmbeddingModel:    s.EmbeddingModel,
			FallbackModels:    s.FallbackModels,
			Dimensions:        s.Dimensions,
			RequestsPerSecond: s.RequestsPerSecond,
		})
		out = append(out, domain.ProviderConfig{
			Name:              name,
			BaseURL:           p.BaseURL,
			APIKey:            p.APIKey,
			GenerationModel:   p.GenerationModel,
			EmbeddingModel:    p.EmbeddingModel,
			FallbackModels:    p.FallbackModels,
			Dimensions:        p.Dimensions,
			RequestsPerSecond: p.RequestsPerSecond,
		})
	}
	return out
}

// Primary returns the provider tried first, or "" when none has credentials.
func (c *Client) Primary() string { return c.llm.Primary() }

// Order returns the fallback order, primary first.
func (c *Client) Order() []string { return c.llm.Order() }

// Embed vectorizes text.
func (c *Client) Embed(ctx context.Context, text string) (res EmbeddingResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("embed", start, err, zap.String("provider", res.Provider)) }()

	r, err := c.llm.Embed(ctx, text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return EmbeddingResult{Embedding: r.Embedding, Provider: r.Provider, Model: r.Model}, nil
}

// Generate produces text for a prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (res GenerationResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("generate", start, err, zap.String("provider", res.Provider)) }()

	r, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("generate: %w", err)
	}
	return GenerationResult{Text: r.Text, Provider: r.Provider, Model: r.Model}, nil
}

// GenerateStructured produces a JSON object for a prompt. Markdown fences around
// the reply are tolerated. A reply that is not an object fails with ErrInvalidJSONResponse.
func (c *Client) GenerateStructured(ctx context.Context, prompt string) (_ map[string]json.RawMessage, err error) {
	start := time.Now()
	defer func() { c.obs.observe("generate_structured", start, err) }()

	obj, err := c.llm.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate structured: %w", err)
	}
	return obj, nil
}

// Rank picks the windows of records most relevant to query. It never fails:
// embedding problems degrade to lexical order and an empty result means no
// record shares a term with the query.
func (c *Client) Rank(ctx context.Context, query string, records []Record) []Chunk {
	start := time.Now()

	in := make([]domain.GazetteRecord, 0, len(records))
	for _, r := range records {
		in = append(in, domain.GazetteRecord{ID: r.ID, Subject: r.Subject, Text: r.Text})
	}
	answer := c.ranker.Rank(ctx, query, in)

	out := make([]Chunk, 0, len(answer.Chunks))
	for _, ch := range answer.Chunks {
		out = append(out, Chunk{
			SourceID: ch.SourceID,
			Subject:  ch.Subject,
			Content:  ch.Content,
			Start:    ch.Start,
			End:      ch.End,
			Score:    ch.Score,
		})
	}
	c.obs.observe("rank", start, nil, zap.Int("records", len(records)), zap.Int("chunks", len(out)))
	return out
}

// HealthCheck probes the primary provider.
func (c *Client) HealthCheck(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("health_check", start, err) }()

	if err = c.llm.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

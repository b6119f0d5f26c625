// Package llm orchestrates provider calls: a retry envelope per provider and
// sequential failover across credentialed providers in preference order.
package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/metrics"
	"github.com/kira-labs/kira/internal/usecase/structured"
)

// ModeAuto selects the first credentialed provider in preference order.
const ModeAuto = "auto"

// Factory builds the adapter for one credentialed provider.
type Factory func(cfg domain.ProviderConfig) domain.Provider

var (
	_ domain.Embedder  = (*Client)(nil)
	_ domain.Generator = (*Client)(nil)
)

// Client is the failover orchestrator. It is immutable after construction and safe for concurrent use.
type Client struct {
	providers map[string]domain.Provider
	primary   string
	order     []string
	retry     RetryConfig
	logger    *zap.Logger
}

// NewClient builds adapters for every credentialed provider and fixes the fallback order:
// the primary first, then the remaining credentialed providers in preference order.
// When mode names a provider without a credential the client has no primary
// and every call fails with a ProviderKeyMissing error.
func NewClient(mode string, configs []domain.ProviderConfig, factory Factory, retry RetryConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		providers: make(map[string]domain.Provider),
		retry:     retry,
		logger:    logger,
	}

	byName := make(map[string]domain.ProviderConfig, len(configs))
	for _, cfg := range configs {
		byName[cfg.Name] = cfg
	}

	var available []string
	for _, name := range domain.ProviderPreference {
		cfg, ok := byName[name]
		if !ok || !cfg.HasCredential() {
			continue
		}
		c.providers[name] = factory(cfg)
		available = append(available, name)
	}

	switch {
	case mode == "" || mode == ModeAuto:
		if len(available) > 0 {
			c.primary = available[0]
		}
	case slices.Contains(available, mode):
		c.primary = mode
	}

	if c.primary != "" {
		c.order = append(c.order, c.primary)
		for _, name := range available {
			if name != c.primary {
				c.order = append(c.order, name)
			}
		}
	}

	logger.Info("llm_client_configured",
		zap.String("mode", mode),
		zap.String("primary", c.primary),
		zap.Strings("fallback_order", c.order),
		zap.Int("max_attempts_per_provider", retry.Attempts()),
	)
	return c
}

// Primary returns the primary provider name, or "" when none is usable.
func (c *Client) Primary() string { return c.primary }

// Order returns a copy of the fallback order.
func (c *Client) Order() []string { return slices.Clone(c.order) }

// EmbedOperation embeds text with failover and reports the full outcome.
func (c *Client) EmbedOperation(ctx context.Context, text string) domain.OperationResult {
	start := time.Now()
	res, attempts, err := failover(ctx, c, domain.OperationEmbedding, func(ctx context.Context, p domain.Provider) (domain.EmbeddingResult, error) {
		return p.Embed(ctx, text)
	})
	out := domain.OperationResult{
		Kind:      domain.OperationEmbedding,
		Embedding: res.Embedding,
		Provider:  res.Provider,
		Model:     res.Model,
		Duration:  time.Since(start),
		Attempts:  attempts,
		Succeeded: err == nil,
		Err:       err,
	}
	domain.UsageFromContext(ctx).Record(out)
	return out
}

// GenerateOperation generates text with failover and reports the full outcome.
func (c *Client) GenerateOperation(ctx context.Context, prompt string) domain.OperationResult {
	start := time.Now()
	res, attempts, err := failover(ctx, c, domain.OperationGeneration, func(ctx context.Context, p domain.Provider) (domain.GenerationResult, error) {
		return p.Generate(ctx, prompt)
	})
	out := domain.OperationResult{
		Kind:      domain.OperationGeneration,
		Text:      res.Text,
		Provider:  res.Provider,
		Model:     res.Model,
		Duration:  time.Since(start),
		Attempts:  attempts,
		Succeeded: err == nil,
		Err:       err,
	}
	domain.UsageFromContext(ctx).Record(out)
	return out
}

// Embed implements domain.Embedder.
func (c *Client) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r := c.EmbedOperation(ctx, text)
	if r.Err != nil {
		return domain.EmbeddingResult{}, r.Err
	}
	return domain.EmbeddingResult{Embedding: r.Embedding, Provider: r.Provider, Model: r.Model}, nil
}

// Generate implements domain.Generator.
func (c *Client) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	r := c.GenerateOperation(ctx, prompt)
	if r.Err != nil {
		return domain.GenerationResult{}, r.Err
	}
	return domain.GenerationResult{Text: r.Text, Provider: r.Provider, Model: r.Model}, nil
}

// GenerateJSON generates text and parses it as a JSON object. A parse failure is a
// KindInvalidJSON error; the caller decides whether to retry or fall back.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (structured.Object, error) {
	res, err := c.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	obj, err := structured.Parse(res.Text)
	if err != nil {
		c.logger.Warn("llm_json_parse_failed",
			zap.String("provider", res.Provider),
			zap.String("model", res.Model),
			zap.Int("response_chars", len(res.Text)),
		)
		return nil, err
	}
	return obj, nil
}

// HealthCheck probes the primary provider when its adapter supports it.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.primary == "" {
		return domain.NewLLMError(domain.KindProviderKeyMissing, "", "", errors.New("no credentialed provider"))
	}
	if hc, ok := c.providers[c.primary].(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// failover walks the fallback order strictly sequentially. A provider is abandoned only
// after its retry envelope is exhausted. Invalid input and parent cancellation stop the walk.
func failover[T any](
	ctx context.Context,
	c *Client,
	op domain.Operation,
	call func(ctx context.Context, p domain.Provider) (T, error),
) (T, int, error) {
	var zero T
	if c.primary == "" {
		return zero, 0, domain.NewLLMError(domain.KindProviderKeyMissing, "", op,
			errors.New("no credentialed provider available for the configured mode"))
	}

	var lastErr error
	attempts := 0
	for i, name := range c.order {
		p := c.providers[name]
		res, n, err := runWithRetry(ctx, c.retry, op, name, c.logger, func(ctx context.Context) (T, error) {
			return call(ctx, p)
		})
		attempts += n
		if err == nil {
			if i > 0 {
				c.logger.Info("llm_provider_fallback_used",
					zap.String("operation", string(op)),
					zap.String("provider", name),
					zap.String("primary", c.primary),
				)
			}
			return res, attempts, nil
		}

		if ctx.Err() != nil || domain.KindOf(err) == domain.KindInvalidInput {
			return zero, attempts, err
		}

		lastErr = err
		c.logger.Warn("llm_provider_failed_switching",
			zap.String("operation", string(op)),
			zap.String("provider", name),
			zap.Int("attempts", n),
			zap.Error(err),
		)
		if i < len(c.order)-1 {
			metrics.ProviderFallbackTotal.WithLabelValues(string(op), name).Inc()
		}
	}

	return zero, attempts, &domain.LLMError{
		Kind:      domain.KindAllProvidersFailed,
		Operation: op,
		Attempts:  attempts,
		Err:       fmt.Errorf("last provider %s: %w", c.order[len(c.order)-1], lastErr),
	}
}

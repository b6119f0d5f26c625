package kira

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/usecase/llm"
	"github.com/kira-labs/kira/internal/usecase/ranking"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

// RankingConfig tunes chunking and the lexical/semantic blend used by Rank.
// Zero fields take the defaults.
type RankingConfig = ranking.Config

type clientConfig struct {
	mode      string
	providers map[string]ProviderSettings
	retry     llm.RetryConfig
	ranking   RankingConfig

	logger     *zap.Logger
	metricsReg prometheus.Registerer

	// factory overrides the vendor adapters; tests only.
	factory llm.Factory
}

// WithOpenAI configures OpenAI with the given API key and default models.
func WithOpenAI(apiKey string) Option {
	return WithProvider(domain.ProviderOpenAI, ProviderSettings{APIKey: apiKey})
}

// WithGemini configures Gemini (OpenAI-compatible endpoint) with the given API key.
func WithGemini(apiKey string) Option {
	return WithProvider(domain.ProviderGemini, ProviderSettings{APIKey: apiKey})
}

// WithMega configures MegaLLM with the given API key and its model fallback chain.
func WithMega(apiKey string) Option {
	return WithProvider(domain.ProviderMega, ProviderSettings{APIKey: apiKey})
}

// WithProvider configures a provider by name: "openai", "gemini" or "mega".
// Providers without an API key are never selected.
func WithProvider(name string, s ProviderSettings) Option {
	return optionFunc(func(c *clientConfig) {
		if c.providers == nil {
			c.providers = make(map[string]ProviderSettings)
		}
		c.providers[name] = s
	})
}

// WithMode selects the primary provider. Default "auto" picks the first
// credentialed provider in the order openai, gemini, mega.
func WithMode(mode string) Option {
	return optionFunc(func(c *clientConfig) {
		c.mode = mode
	})
}

// WithRetry sets the per-attempt timeout, retries per provider and the base
// backoff between attempts. Defaults: 25s, 2, 200ms.
func WithRetry(timeout time.Duration, maxRetries int, backoff time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.retry = llm.RetryConfig{Timeout: timeout, MaxRetries: maxRetries, Backoff: backoff}
	})
}

// WithRanking overrides the ranking tuning.
func WithRanking(cfg RankingConfig) Option {
	return optionFunc(func(c *clientConfig) {
		c.ranking = cfg
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

func withProviderFactory(f llm.Factory) Option {
	return optionFunc(func(c *clientConfig) {
		c.factory = f
	})
}

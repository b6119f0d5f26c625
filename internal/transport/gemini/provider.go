// Package gemini adapts Google Gemini to domain.Provider through its
// OpenAI-compatible endpoint using the official openai-go client.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/metrics"
)

const temperature = 0.2

var (
	_ domain.Provider      = (*Provider)(nil)
	_ domain.HealthChecker = (*Provider)(nil)
)

// Provider calls Gemini.
type Provider struct {
	client openai.Client
	cfg    domain.ProviderConfig
	logger *zap.Logger
}

// NewProvider creates the adapter. The client's own retries are disabled;
// the orchestrator's envelope owns retry policy.
func NewProvider(cfg domain.ProviderConfig, logger *zap.Logger) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{client: openai.NewClient(opts...), cfg: cfg, logger: logger}
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.cfg.Name }

// Embed implements domain.Embedder.
func (p *Provider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.EmbeddingResult{}, p.llmErr(domain.KindInvalidInput, domain.OperationEmbedding, errors.New("text is empty"))
	}

	model := p.cfg.EmbeddingModel
	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          openai.EmbeddingModel(model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if p.cfg.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.cfg.Dimensions))
	}

	start := time.Now()
	resp, err := p.client.Embeddings.New(ctx, params)
	p.observe(model, domain.OperationEmbedding, start, err)
	if err != nil {
		return domain.EmbeddingResult{}, p.apiErr(domain.OperationEmbedding, model, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		metrics.ProviderErrorsTotal.WithLabelValues(p.cfg.Name, model, "empty_response").Inc()
		return domain.EmbeddingResult{}, p.llmErr(domain.KindEmptyResponse, domain.OperationEmbedding, nil)
	}

	raw := resp.Data[0].Embedding
	if p.cfg.Dimensions > 0 && len(raw) != p.cfg.Dimensions {
		return domain.EmbeddingResult{}, p.llmErr(domain.KindUpstream, domain.OperationEmbedding,
			fmt.Errorf("got %d, want %d: %w", len(raw), p.cfg.Dimensions, domain.ErrVectorDimMismatch))
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}

	return domain.EmbeddingResult{
		Embedding:   vec,
		Provider:    p.cfg.Name,
		Model:       model,
		TotalTokens: int(resp.Usage.TotalTokens),
	}, nil
}

// Generate implements domain.Generator, trying the primary model then declared fallbacks.
func (p *Provider) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return domain.GenerationResult{}, p.llmErr(domain.KindInvalidInput, domain.OperationGeneration, errors.New("prompt is empty"))
	}

	var lastErr error
	models := p.cfg.GenerationModels()
	for i, model := range models {
		text, err := p.complete(ctx, model, prompt)
		if err == nil {
			if i > 0 {
				metrics.ModelFallbackTotal.WithLabelValues(p.cfg.Name, model).Inc()
				p.logger.Info("llm_generation_model_fallback_used",
					zap.String("provider", p.cfg.Name), zap.String("model", model))
			}
			return domain.GenerationResult{Text: text, Provider: p.cfg.Name, Model: model}, nil
		}
		lastErr = err
		p.logger.Warn("llm_generation_model_attempt_failed",
			zap.String("provider", p.cfg.Name), zap.String("model", model), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = p.llmErr(domain.KindInvalidInput, domain.OperationGeneration, errors.New("no generation model configured"))
	}
	return domain.GenerationResult{}, lastErr
}

func (p *Provider) complete(ctx context.Context, model, prompt string) (string, error) {
	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:       openai.ChatModel(model),
		Temperature: openai.Float(temperature),
	})
	p.observe(model, domain.OperationGeneration, start, err)
	if err != nil {
		return "", p.apiErr(domain.OperationGeneration, model, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.ProviderErrorsTotal.WithLabelValues(p.cfg.Name, model, "empty_response").Inc()
		return "", p.llmErr(domain.KindEmptyResponse, domain.OperationGeneration, fmt.Errorf("model %s", model))
	}
	if resp.Usage.TotalTokens > 0 {
		metrics.ProviderTokensTotal.WithLabelValues(p.cfg.Name, model, "total").Add(float64(resp.Usage.TotalTokens))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// HealthCheck lists models.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("%s list models: %w", p.cfg.Name, err)
	}
	return nil
}

func (p *Provider) observe(model string, op domain.Operation, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(p.cfg.Name, model, string(op), status).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(p.cfg.Name, model, string(op)).Observe(time.Since(start).Seconds())
}

func (p *Provider) llmErr(kind domain.ErrorKind, op domain.Operation, err error) error {
	return domain.NewLLMError(kind, p.cfg.Name, op, err)
}

func (p *Provider) apiErr(op domain.Operation, model string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		metrics.ProviderErrorsTotal.WithLabelValues(p.cfg.Name, model, "timeout").Inc()
		return p.llmErr(domain.KindTimeout, op, err)
	}
	metrics.ProviderErrorsTotal.WithLabelValues(p.cfg.Name, model, "api_error").Inc()

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return p.llmErr(domain.KindUpstream, op, fmt.Errorf("API error %d: %s", apiErr.StatusCode, apiErr.Message))
	}
	return p.llmErr(domain.KindUpstream, op, err)
}

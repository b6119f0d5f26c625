// Package openai adapts OpenAI-compatible vendors (OpenAI itself and the Mega gateway)
// to domain.Provider via sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/metrics"
)

// Temperature used for every generation call.
const Temperature = 0.2

var (
	_ domain.Provider      = (*Provider)(nil)
	_ domain.HealthChecker = (*Provider)(nil)
)

// Provider calls one OpenAI-compatible vendor.
type Provider struct {
	client  *openai.Client
	cfg     domain.ProviderConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewProvider creates an adapter. An empty BaseURL keeps the client default.
func NewProvider(cfg domain.ProviderConfig, logger *zap.Logger) *Provider {
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
	}
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.cfg.Name }

// Embed implements domain.Embedder.
func (p *Provider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.EmbeddingResult{}, p.llmErr(domain.KindInvalidInput, domain.OperationEmbedding, errors.New("text is empty"))
	}
	if err := p.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, p.llmErr(domain.KindTimeout, domain.OperationEmbedding, err)
	}

	model := p.cfg.EmbeddingModel
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if p.cfg.Dimensions > 0 {
		req.Dimensions = p.cfg.Dimensions
	}

	start := time.Now()
	resp, err := p.client.CreateEmbeddings(ctx, req)
	p.observe(model, domain.OperationEmbedding, start, err)
	if err != nil {
		return domain.EmbeddingResult{}, p.apiErr(domain.OperationEmbedding, model, err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		metrics.ProviderErrorsTotal.WithLabelValues(p.cfg.Name, model, "empty_response").Inc()
		return domain.EmbeddingResult{}, p.llmErr(domain.KindEmptyResponse, domain.OperationEmbedding, nil)
	}
	vec := resp.Data[0].Embedding
	if p.cfg.Dimensions > 0 && len(vec) != p.cfg.Dimensions {
		return domain.EmbeddingResult{}, p.llmErr(domain.KindUpstream, domain.OperationEmbedding,
			fmt.Errorf("got %d, want %d: %w", len(vec), p.cfg.Dimensions, domain.ErrVectorDimMismatch))
	}

	if resp.Usage.TotalTokens > 0 {
		metrics.ProviderTokensTotal.WithLabelValues(p.cfg.Name, model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	return domain.EmbeddingResult{
		Embedding:   vec,
		Provider:    p.cfg.Name,
		Model:       model,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

// Generate implements domain.Generator. Models are tried in declared order;
// a failed model is logged and the next one is tried within the same call.
func (p *Provider) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return domain.GenerationResult{}, p.llmErr(domain.KindInvalidInput, domain.OperationGeneration, errors.New("prompt is empty"))
	}

	models := p.cfg.GenerationModels()
	if len(models) == 0 {
		return domain.GenerationResult{}, p.llmErr(domain.KindInvalidInput, domain.OperationGeneration, errors.New("no generation model configured"))
	}

	var lastErr error
	for i, model := range models {
		if ctx.Err() != nil {
			break
		}

		text, err := p.complete(ctx, model, prompt)
		if err == nil {
			if i > 0 {
				metrics.ModelFallbackTotal.WithLabelValues(p.cfg.Name, model).Inc()
				p.logger.Info("llm_generation_model_fallback_used",
					zap.String("provider", p.cfg.Name),
					zap.String("primary_model", models[0]),
					zap.String("model", model),
				)
			}
			return domain.GenerationResult{Text: text, Provider: p.cfg.Name, Model: model}, nil
		}

		lastErr = err
		p.logger.Warn("llm_generation_model_attempt_failed",
			zap.String("provider", p.cfg.Name),
			zap.String("model", model),
			zap.Int("model_index", i),
			zap.Error(err),
		)
	}

	if lastErr == nil {
		lastErr = p.llmErr(domain.KindTimeout, domain.OperationGeneration, ctx.Err())
	}
	return domain.GenerationResult{}, lastErr
}

func (p *Provider) complete(ctx context.Context, model, prompt string) (string, error) {
	if err := p.wait(ctx); err != nil {
		return "", p.llmErr(domain.KindTimeout, domain.OperationGeneration, err)
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: Temperature,
	})
	p.observe(model, domain.OperationGeneration, start, err)
	if err != nil {
		return "", p.apiErr(domain.OperationGeneration, model, err)
	}

	if resp.Usage.TotalTokens > 0 {
		metrics.ProviderTokensTotal.WithLabelValues(p.cfg.Name, model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.ProviderErrorsTotal.WithLabelValues(p.cfg.Name, model, "empty_response").Inc()
		return "", p.llmErr(domain.KindEmptyResponse, domain.OperationGeneration, fmt.Errorf("model %s", model))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%s list models: %w", p.cfg.Name, err)
	}
	return nil
}

func (p *Provider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
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

// apiErr classifies a client error and extracts a readable message from the vendor body.
func (p *Provider) apiErr(op domain.Operation, model string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		metrics.ProviderErrorsTotal.WithLabelValues(p.cfg.Name, model, "timeout").Inc()
		return p.llmErr(domain.KindTimeout, op, err)
	}
	metrics.ProviderErrorsTotal.WithLabelValues(p.cfg.Name, model, "api_error").Inc()
	return p.llmErr(domain.KindUpstream, op, describeAPIError(err))
}

func describeAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("API error %d: %s", reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("API error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return err
}

// extractDetail reads the "detail" field some gateways use instead of the OpenAI error envelope.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterLLMMetrics()
	os.Exit(m.Run())
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func writeChat(w http.ResponseWriter, model, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
		"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8},
	})
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "server_error"},
	})
}

func newTestProvider(url string, cfg domain.ProviderConfig, logger *zap.Logger) *Provider {
	cfg.BaseURL = url
	if cfg.Name == "" {
		cfg.Name = domain.ProviderMega
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	return NewProvider(cfg, logger)
}

func TestProvider_Embed(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "emb",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": expectedVec}},
			"usage":  map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL, domain.ProviderConfig{EmbeddingModel: "emb", Dimensions: 4}, nil)

	result, err := p.Embed(context.Background(), "capital adequacy")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(result.Embedding) != 4 || result.Embedding[2] != 0.3 {
		t.Errorf("unexpected vector %v", result.Embedding)
	}
	if result.Provider != domain.ProviderMega || result.Model != "emb" || result.TotalTokens != 3 {
		t.Errorf("unexpected result metadata: %+v", result)
	}
}

func TestProvider_Embed_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 2}}},
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL, domain.ProviderConfig{EmbeddingModel: "emb", Dimensions: 4}, nil)

	_, err := p.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestProvider_Embed_EmptyText(t *testing.T) {
	p := newTestProvider("http://127.0.0.1:1", domain.ProviderConfig{}, nil)

	_, err := p.Embed(context.Background(), "   ")
	if domain.KindOf(err) != domain.KindInvalidInput {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		writeChat(w, req.Model, "  answer  ")
	}))
	defer server.Close()

	p := newTestProvider(server.URL, domain.ProviderConfig{GenerationModel: "gpt-4o-mini"}, nil)

	res, err := p.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Text != "answer" || res.Model != "gpt-4o-mini" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestProvider_Generate_ModelFallback(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		seen = append(seen, req.Model)
		mu.Unlock()

		switch req.Model {
		case "mega-chat-1":
			writeAPIError(w, http.StatusInternalServerError, "model overloaded")
		case "mega-flash":
			writeChat(w, req.Model, "")
		default:
			writeChat(w, req.Model, "from fallback")
		}
	}))
	defer server.Close()

	core, logs := observer.New(zap.InfoLevel)
	p := newTestProvider(server.URL, domain.ProviderConfig{
		GenerationModel: "mega-chat-1",
		FallbackModels:  []string{"mega-flash", "gpt-4o-mini", "gpt-5-mini"},
	}, zap.New(core))

	res, err := p.Generate(context.Background(), "question")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Text != "from fallback" || res.Model != "gpt-4o-mini" {
		t.Errorf("unexpected result %+v", res)
	}

	want := []string{"mega-chat-1", "mega-flash", "gpt-4o-mini"}
	if len(seen) != len(want) {
		t.Fatalf("models tried = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("model[%d] = %q, want %q", i, seen[i], want[i])
		}
	}

	if n := logs.FilterMessage("llm_generation_model_attempt_failed").Len(); n != 2 {
		t.Errorf("expected 2 attempt_failed logs, got %d", n)
	}
	if n := logs.FilterMessage("llm_generation_model_fallback_used").Len(); n != 1 {
		t.Errorf("expected 1 fallback_used log, got %d", n)
	}
}

func TestProvider_Generate_AllModelsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeChat(w, req.Model, " ")
	}))
	defer server.Close()

	p := newTestProvider(server.URL, domain.ProviderConfig{GenerationModel: "a", FallbackModels: []string{"b"}}, nil)

	_, err := p.Generate(context.Background(), "question")
	if !errors.Is(err, domain.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestProvider_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeAPIError(w, http.StatusTooManyRequests, "rate limit reached")
	}))
	defer server.Close()

	p := newTestProvider(server.URL, domain.ProviderConfig{GenerationModel: "a"}, nil)

	_, err := p.Generate(context.Background(), "question")
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.KindOf(err) != domain.KindUpstream {
		t.Errorf("expected upstream kind, got %v", domain.KindOf(err))
	}
	var le *domain.LLMError
	if !errors.As(err, &le) || le.Provider != domain.ProviderMega {
		t.Errorf("expected provider-tagged error, got %v", err)
	}
}

func TestExtractDetail(t *testing.T) {
	if got := extractDetail([]byte(`{"detail":"quota exceeded"}`)); got != "quota exceeded" {
		t.Errorf("got %q", got)
	}
	if got := extractDetail([]byte(`not json`)); got != "" {
		t.Errorf("got %q", got)
	}
}

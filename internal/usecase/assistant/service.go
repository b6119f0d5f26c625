// Package assistant answers free-form compliance questions from retrieved policy context.
package assistant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/usecase/guard"
	"github.com/kira-labs/kira/internal/usecase/rag"
)

const (
	cacheNamespace = "assistant"
	contextChunks  = 4
	chunkChars     = 250
	fallbackChars  = 320
)

// Confidence levels by amount of retrieved context.
const (
	ConfidenceLow    = "LOW"
	ConfidenceMedium = "MEDIUM"
	ConfidenceHigh   = "HIGH"
)

// Reply is the chat response.
type Reply struct {
	Reply       string `json:"reply"`
	Confidence  string `json:"confidence"`
	ContextUsed int    `json:"context_used"`
}

// Service answers chat messages.
type Service struct {
	retriever Retriever
	generator Generator
	cache     Cache
	logger    *zap.Logger
}

// New creates an assistant service. cache may be nil.
func New(retriever Retriever, generator Generator, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{retriever: retriever, generator: generator, cache: cache, logger: logger}
}

// Chat answers message for the given organization. Only invalid or unsafe input fails;
// retrieval and generation failures produce a fallback reply.
func (s *Service) Chat(ctx context.Context, message string, profile domain.OrganizationProfile) (Reply, error) {
	if err := guard.ValidatePrompt(message); err != nil {
		return Reply{}, err
	}

	key := cacheKey(message, profile)
	if s.cache != nil {
		var cached Reply
		hit, err := s.cache.GetJSON(ctx, cacheNamespace, key, &cached)
		if err != nil {
			s.logger.Warn("assistant_cache_read_failed", zap.Error(err))
		}
		if hit {
			return cached, nil
		}
	}

	retrieved, err := s.retriever.Retrieve(ctx, profile, message)
	if err != nil {
		s.logger.Warn("assistant_retrieval_failed", zap.Error(err))
		retrieved = nil
	}
	excerpts := buildContext(retrieved)

	prompt := "You are a regulatory assistant. Answer concisely and only from provided context. " +
		"Context: " + excerpts + "\n" +
		"Question: " + message

	var text string
	res, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("assistant_generation_fallback", zap.Error(err), zap.String("kind", domain.KindOf(err).String()))
		text = fallbackReply(excerpts)
	} else {
		text = res.Text
	}

	reply := Reply{
		Reply:       guard.SanitizeOutput(text),
		Confidence:  confidence(len(retrieved)),
		ContextUsed: len(retrieved),
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheNamespace, key, reply, 0); err != nil {
			s.logger.Warn("assistant_cache_write_failed", zap.Error(err))
		}
	}
	return reply, nil
}

func buildContext(chunks []rag.Chunk) string {
	parts := make([]string, 0, contextChunks)
	for i, c := range chunks {
		if i == contextChunks {
			break
		}
		parts = append(parts, domain.TruncateRunes(c.Document.Content, chunkChars))
	}
	return strings.Join(parts, "\n")
}

func fallbackReply(excerpts string) string {
	if excerpts == "" {
		return "Fallback response: no matching policy context was retrieved. " +
			"Please refine your question with specific policy identifiers or obligations."
	}
	return "Fallback response: based on retrieved policy context, key points include " +
		domain.TruncateRunes(excerpts, fallbackChars)
}

func confidence(n int) string {
	switch {
	case n >= 3:
		return ConfidenceHigh
	case n >= 1:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func cacheKey(message string, profile domain.OrganizationProfile) string {
	body, _ := json.Marshal(profile)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", message, body)))
	return hex.EncodeToString(sum[:])
}

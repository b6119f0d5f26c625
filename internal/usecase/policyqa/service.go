// Package policyqa answers questions strictly from gazette excerpts.
package policyqa

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/usecase/guard"
)

// NotFoundMessage is returned when the excerpts do not answer the question.
const NotFoundMessage = "No verified information found in available gazette records."

// UnavailableMessage is returned when no answer could be generated.
const UnavailableMessage = "Policy analysis temporarily unavailable"

// Answer is the Q&A response. Exactly one of Answer and Error is set.
type Answer struct {
	Answer  *string         `json:"answer"`
	Error   *string         `json:"error"`
	Sources []domain.Source `json:"sources"`
}

// Service answers policy questions.
type Service struct {
	records   Records
	ranker    Ranker
	generator Generator
	logger    *zap.Logger
}

// New creates a Q&A service.
func New(records Records, ranker Ranker, generator Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{records: records, ranker: ranker, generator: generator, logger: logger}
}

// Ask answers question, optionally restricted to one gazette.
func (s *Service) Ask(ctx context.Context, question, gazetteID string) Answer {
	records := s.records.Records()
	if id := strings.TrimSpace(gazetteID); id != "" {
		filtered := records[:0:0]
		for _, r := range records {
			if strings.TrimSpace(r.ID) == id {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	if len(records) == 0 {
		return notFound(nil)
	}

	ranked := s.ranker.Rank(ctx, question, records)
	if ranked.Empty() {
		return notFound(nil)
	}
	sources := ranked.Sources()

	answer, ok := s.generateWithRetry(ctx, buildPrompt(question, ranked.Excerpts()))
	if !ok {
		msg := UnavailableMessage
		return Answer{Error: &msg, Sources: sources}
	}
	if strings.Contains(strings.ToLower(answer), strings.ToLower(NotFoundMessage)) {
		return notFound(sources)
	}
	return Answer{Answer: &answer, Sources: sources}
}

func buildPrompt(question, excerpts string) string {
	return "You are a compliance assistant.\n\n" +
		"Answer the user's question strictly using the provided gazette excerpts.\n\n" +
		"If the answer is not clearly found in the excerpts, say:\n" +
		`"` + NotFoundMessage + `"` + "\n\n" +
		"Do not fabricate information.\n" +
		"Do not use external knowledge.\n" +
		"Keep answer concise.\n\n" +
		"Question: " + question + "\n\n" +
		"Gazette Excerpts:\n" + excerpts
}

// generateWithRetry makes at most two generation calls and returns the first non-blank answer.
func (s *Service) generateWithRetry(ctx context.Context, prompt string) (string, bool) {
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := s.generator.Generate(ctx, prompt)
		if err != nil {
			s.logger.Warn("policy_query_attempt_failed",
				zap.Int("attempt", attempt),
				zap.String("kind", domain.KindOf(err).String()),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return "", false
			}
			continue
		}
		if text := guard.SanitizeOutput(res.Text); text != "" {
			return text, true
		}
	}
	return "", false
}

func notFound(sources []domain.Source) Answer {
	msg := NotFoundMessage
	if sources == nil {
		sources = []domain.Source{}
	}
	return Answer{Answer: &msg, Sources: sources}
}

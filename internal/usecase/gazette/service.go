// Package gazette extracts structured regulatory analysis from gazette notifications.
package gazette

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/usecase/structured"
)

// UnavailableMessage is the error text returned when analysis cannot be produced.
const UnavailableMessage = "Policy analysis temporarily unavailable"

const (
	fallbackChars  = 1200
	tokenThreshold = 10000
	semanticK      = 3
	chunkSeparator = "\n\n---\n\n"
	semanticQuery  = "regulation name ministry policy type date effective date industry departments compliance penalties risk"
)

// Result is the analysis of one gazette. Absent fields serialize as null.
type Result struct {
	GazetteID    *string                     `json:"gazette_id"`
	Subject      *string                     `json:"subject"`
	URL          *string                     `json:"url"`
	Analysis     *structured.GazetteAnalysis `json:"analysis"`
	FallbackText *string                     `json:"fallback_text"`
	Error        *string                     `json:"error"`
}

// Failed reports whether the analysis could not be produced.
func (r Result) Failed() bool { return r.Error != nil }

// Config sizes the windows used for long notifications.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// Service analyzes gazette notifications.
type Service struct {
	records   Records
	generator JSONGenerator
	ranker    SemanticRanker
	cfg       Config
	logger    *zap.Logger
}

// New creates a gazette analysis service.
func New(records Records, generator JSONGenerator, ranker SemanticRanker, cfg Config, logger *zap.Logger) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 12000
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 800
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{records: records, generator: generator, ranker: ranker, cfg: cfg, logger: logger}
}

// Record returns the raw gazette by id.
func (s *Service) Record(id string) (domain.GazetteRecord, bool) {
	return s.records.ByID(id)
}

// Analyze extracts the structured analysis of one gazette.
func (s *Service) Analyze(ctx context.Context, gazetteID string) Result {
	rec, ok := s.records.ByID(gazetteID)
	if !ok {
		return Result{Error: ptr(UnavailableMessage)}
	}

	text := strings.TrimSpace(rec.Text)
	subject := strings.TrimSpace(rec.Subject)
	url := strings.TrimSpace(rec.URL)

	if text == "" {
		return Result{
			GazetteID:    ptr(gazetteID),
			Subject:      optional(subject),
			URL:          optional(url),
			FallbackText: ptr(""),
		}
	}

	analysisText := text
	if EstimateTokens(text) > tokenThreshold {
		analysisText = s.condense(ctx, text)
	}

	obj, ok := s.generateWithRetry(ctx, renderPrompt(subject, gazetteID, analysisText))
	if !ok {
		s.logger.Warn("gazette_analysis_unavailable", zap.String("gazette_id", gazetteID))
		return Result{
			Error:        ptr(UnavailableMessage),
			GazetteID:    ptr(gazetteID),
			Subject:      optional(subject),
			URL:          optional(url),
			FallbackText: ptr(domain.TruncateRunes(text, fallbackChars)),
		}
	}

	analysis := structured.NormalizeGazetteAnalysis(obj)
	return Result{
		GazetteID:    ptr(gazetteID),
		Subject:      optional(subject),
		URL:          optional(url),
		Analysis:     &analysis,
		FallbackText: ptr(domain.TruncateRunes(text, fallbackChars)),
	}
}

// AnalyzeAll analyzes the first limit gazettes in dataset order. Records without an id are skipped.
func (s *Service) AnalyzeAll(ctx context.Context, limit int) []Result {
	rows := s.records.Records()
	if n := max(limit, 1); len(rows) > n {
		rows = rows[:n]
	}

	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			continue
		}
		res := s.Analyze(ctx, id)
		if res.Failed() && (res.FallbackText == nil || *res.FallbackText == "") {
			res.FallbackText = ptr(domain.TruncateRunes(row.Text, fallbackChars))
		}
		if res.Subject == nil {
			res.Subject = optional(strings.TrimSpace(row.Subject))
		}
		if res.URL == nil {
			res.URL = optional(strings.TrimSpace(row.URL))
		}
		out = append(out, res)
	}
	return out
}

// EstimateTokens approximates the token count as a quarter of the character count, at least 1.
func EstimateTokens(text string) int {
	return max(1, (utf8.RuneCountInString(text)+3)/4)
}

// condense keeps the windows most relevant to the extraction fields.
func (s *Service) condense(ctx context.Context, text string) string {
	windows := s.ranker.SemanticTop(ctx, text, semanticQuery, s.cfg.ChunkSize, s.cfg.ChunkOverlap, semanticK)
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		if c := strings.TrimSpace(w.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, chunkSeparator)
}

// generateWithRetry makes at most two structured generation calls.
func (s *Service) generateWithRetry(ctx context.Context, prompt string) (structured.Object, bool) {
	for attempt := 1; attempt <= 2; attempt++ {
		obj, err := s.generator.GenerateJSON(ctx, prompt)
		if err == nil {
			return obj, true
		}
		s.logger.Warn("gazette_analysis_attempt_failed",
			zap.Int("attempt", attempt),
			zap.String("kind", domain.KindOf(err).String()),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, false
}

func ptr(s string) *string { return &s }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

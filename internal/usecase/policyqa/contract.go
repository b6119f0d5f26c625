package policyqa

import (
	"context"

	"github.com/kira-labs/kira/internal/domain"
)

// Records reads the gazette dataset.
type Records interface {
	Records() []domain.GazetteRecord
}

// Ranker selects the chunks that best answer a question.
type Ranker interface {
	Rank(ctx context.Context, query string, records []domain.GazetteRecord) domain.RankedAnswer
}

// Generator produces the answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (domain.GenerationResult, error)
}

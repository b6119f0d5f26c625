package gazette

import (
	"context"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/usecase/ranking"
	"github.com/kira-labs/kira/internal/usecase/structured"
)

// Records reads the gazette dataset.
type Records interface {
	Records() []domain.GazetteRecord
	ByID(id string) (domain.GazetteRecord, bool)
}

// JSONGenerator produces a parsed JSON object from a prompt.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (structured.Object, error)
}

// SemanticRanker selects the windows of a long text closest to a query.
type SemanticRanker interface {
	SemanticTop(ctx context.Context, text, query string, size, overlap, k int) []ranking.Window
}

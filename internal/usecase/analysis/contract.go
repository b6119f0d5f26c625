package analysis

import (
	"context"
	"time"

	"github.com/kira-labs/kira/internal/domain"
	gazetteuc "github.com/kira-labs/kira/internal/usecase/gazette"
	"github.com/kira-labs/kira/internal/usecase/rag"
	"github.com/kira-labs/kira/internal/usecase/structured"
)

// Retriever finds policies relevant to an organization.
type Retriever interface {
	Retrieve(ctx context.Context, profile domain.OrganizationProfile, query string) ([]rag.Chunk, error)
}

// JSONGenerator produces a parsed JSON object from a prompt.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (structured.Object, error)
}

// GazetteAnalyzer analyzes a single gazette notification.
type GazetteAnalyzer interface {
	Analyze(ctx context.Context, gazetteID string) gazetteuc.Result
}

// Cache memoizes analysis results.
type Cache interface {
	GetJSON(ctx context.Context, ns, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, ns, key string, value any, ttl time.Duration) error
}

package assistant

import (
	"context"
	"time"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/usecase/rag"
)

// Retriever finds policy context for a message.
type Retriever interface {
	Retrieve(ctx context.Context, profile domain.OrganizationProfile, query string) ([]rag.Chunk, error)
}

// Generator produces the reply text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (domain.GenerationResult, error)
}

// Cache memoizes replies.
type Cache interface {
	GetJSON(ctx context.Context, ns, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, ns, key string, value any, ttl time.Duration) error
}

package dashboard

import (
	"context"
	"time"

	"github.com/kira-labs/kira/internal/domain"
)

// Documents reads the policy registry.
type Documents interface {
	AllDocuments(ctx context.Context, limit int) ([]domain.PolicyDocument, error)
	DocumentByID(ctx context.Context, id string) (domain.PolicyDocument, error)
}

// Cache memoizes the summary.
type Cache interface {
	GetJSON(ctx context.Context, ns, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, ns, key string, value any, ttl time.Duration) error
}

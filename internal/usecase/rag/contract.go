package rag

import (
	"context"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/repository/document"
)

// DocumentSource lists policy documents.
type DocumentSource interface {
	AllDocuments(ctx context.Context, limit int) ([]domain.PolicyDocument, error)
}

// VectorSource runs nearest-neighbour queries over stored policy vectors.
type VectorSource interface {
	Query(ctx context.Context, embedding []float32, topK int) ([]document.ScoredDocument, error)
}

// Package document stores policy documents as Redis hashes with an FT vector index,
// falling back to the on-disk policy tree when the store is empty or unreachable.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/db"
	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/metrics"
)

const (
	fieldID            = "policy_id"
	fieldName          = "policy_name"
	fieldAuthority     = "authority"
	fieldVersion       = "version"
	fieldEffectiveDate = "effective_date"
	fieldStatus        = "processing_status"
	fieldContent       = "content"
	fieldVector        = "vector"
)

var listFields = []string{
	fieldID, fieldName, fieldAuthority, fieldVersion, fieldEffectiveDate, fieldStatus, fieldContent,
}

// store is the consumer interface for documents (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
}

// fallback supplies documents when the store has none.
type fallback interface {
	Load() ([]domain.PolicyDocument, error)
}

// Config names the keys and index of the document store.
type Config struct {
	KeyPrefix  string // e.g. "kira:"
	IndexName  string
	Dimensions int // vector field size; 0 disables the vector field
	Provider   string // provider whose vectors the index holds; empty accepts any
}

// ScoredDocument is a KNN hit.
type ScoredDocument struct {
	Document domain.PolicyDocument
	Distance float64
	Score    float64
}

// Repo reads and writes policy documents.
type Repo struct {
	store    store
	fallback fallback
	cfg      Config
	logger   *zap.Logger
}

// New creates a document repository. fb may be nil.
func New(s store, fb fallback, cfg Config, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, fallback: fb, cfg: cfg, logger: logger}
}

func (r *Repo) keyPrefix() string { return r.cfg.KeyPrefix + "policy:" }

func (r *Repo) docKey(id string) string { return r.keyPrefix() + id }

// IndexDefinition returns the FT schema for policy hashes.
func (r *Repo) IndexDefinition() (*db.IndexDefinition, error) {
	b := db.NewIndex(r.cfg.IndexName).
		Prefix(r.keyPrefix()).
		Tag(fieldID, fieldAuthority, fieldStatus).
		Text(fieldName, fieldContent)
	if r.cfg.Dimensions > 0 {
		b = b.Vector(fieldVector, r.cfg.Dimensions, db.VectorHNSW)
	}
	return b.Build()
}

// EnsureIndex creates the FT index unless it already exists.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.cfg.IndexName, err)
	}
	if exists {
		return nil
	}
	def, err := r.IndexDefinition()
	if err != nil {
		return fmt.Errorf("build index %s: %w", r.cfg.IndexName, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.cfg.IndexName, err)
	}
	return nil
}

// Upsert writes a document. A nil vector leaves the document out of KNN results.
func (r *Repo) Upsert(ctx context.Context, doc domain.PolicyDocument, vector []float32) error {
	if err := r.store.HSet(ctx, r.docKey(doc.ID), buildHashFields(doc, vector)); err != nil {
		return fmt.Errorf("hset %s: %w", doc.ID, err)
	}
	return nil
}

// UpsertMany writes documents in one pipelined round-trip. vectors may be nil or shorter than docs.
func (r *Repo) UpsertMany(ctx context.Context, docs []domain.PolicyDocument, vectors [][]float32) error {
	items := make([]db.HashSetItem, len(docs))
	for i, d := range docs {
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		items[i] = db.HashSetItem{Key: r.docKey(d.ID), Fields: buildHashFields(d, vec)}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset multi: %w", err)
	}
	return nil
}

// AllDocuments lists up to limit documents from the store, or from the policy tree
// when the store is empty or failing.
func (r *Repo) AllDocuments(ctx context.Context, limit int) ([]domain.PolicyDocument, error) {
	if limit <= 0 {
		limit = 200
	}

	start := time.Now()
	res, err := r.store.SearchList(ctx, r.cfg.IndexName, "*", 0, limit, listFields)
	metrics.VectorQueryDuration.WithLabelValues("list", "store").Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		r.logger.Warn("vector_store_error_using_filesystem_fallback", zap.Error(err))
	case res == nil || len(res.Entries) == 0:
		r.logger.Info("vector_store_empty_using_filesystem_fallback")
	default:
		docs := make([]domain.PolicyDocument, 0, len(res.Entries))
		for _, e := range res.Entries {
			docs = append(docs, parseHashFields(r.idFromKey(e.Key), e.Fields))
		}
		return docs, nil
	}

	docs, err := r.loadFallback()
	if err != nil {
		return nil, err
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// DocumentByID returns the document with the given id, looking in the policy tree
// when the store does not have it. An unknown id yields domain.ErrNotFound.
func (r *Repo) DocumentByID(ctx context.Context, id string) (domain.PolicyDocument, error) {
	fields, err := r.store.HGetAll(ctx, r.docKey(id))
	switch {
	case err != nil:
		r.logger.Warn("vector_store_error_using_filesystem_fallback", zap.String("policy_id", id), zap.Error(err))
	case len(fields) == 0:
		r.logger.Info("policy_not_found_in_vector_store_using_filesystem_fallback", zap.String("policy_id", id))
	default:
		return parseHashFields(id, fields), nil
	}

	docs, err := r.loadFallback()
	if err != nil {
		return domain.PolicyDocument{}, err
	}
	for _, d := range docs {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.PolicyDocument{}, fmt.Errorf("policy %s: %w", id, domain.ErrNotFound)
}

// Query returns the topK documents nearest to embedding.
func (r *Repo) Query(ctx context.Context, embedding []float32, topK int) ([]ScoredDocument, error) {
	start := time.Now()
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		VectorField:  fieldVector,
		Vector:       embedding,
		K:            topK,
		ReturnFields: listFields,
	})
	elapsed := time.Since(start)
	metrics.VectorQueryDuration.WithLabelValues("query", "store").Observe(elapsed.Seconds())
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.cfg.IndexName, err)
	}

	out := make([]ScoredDocument, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, ScoredDocument{
			Document: parseHashFields(r.idFromKey(e.Key), e.Fields),
			Distance: e.Distance,
			Score:    e.Score,
		})
	}
	r.logger.Info("vector_query_completed",
		zap.Int("top_k", topK),
		zap.Int("results", len(out)),
		zap.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	)
	return out, nil
}

// Ping checks the backing store.
func (r *Repo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func (r *Repo) loadFallback() ([]domain.PolicyDocument, error) {
	if r.fallback == nil {
		return nil, nil
	}
	start := time.Now()
	docs, err := r.fallback.Load()
	metrics.VectorQueryDuration.WithLabelValues("list", "filesystem").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("load policy tree: %w", err)
	}
	return docs, nil
}

func (r *Repo) idFromKey(key string) string {
	return strings.TrimPrefix(key, r.keyPrefix())
}

// Seed copies the policy tree into the store. Documents are embedded when embedder is
// non-nil; a document whose embedding fails is still stored, without a vector.
func (r *Repo) Seed(ctx context.Context, embedder domain.Embedder, embedCharLimit int) (int, error) {
	docs, err := r.loadFallback()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	vectors := make([][]float32, len(docs))
	if embedder != nil {
		for i, d := range docs {
			res, err := embedder.Embed(ctx, truncate(d.Content, embedCharLimit))
			if err != nil {
				r.logger.Warn("policy_seed_embedding_failed", zap.String("policy_id", d.ID), zap.Error(err))
				continue
			}
			if r.cfg.Dimensions > 0 && len(res.Embedding) != r.cfg.Dimensions {
				r.logger.Warn("policy_seed_embedding_failed",
					zap.String("policy_id", d.ID),
					zap.Error(domain.ErrVectorDimMismatch),
				)
				continue
			}
			if r.cfg.Provider != "" && res.Provider != r.cfg.Provider {
				r.logger.Warn("policy_seed_embedding_skipped",
					zap.String("policy_id", d.ID),
					zap.String("index_provider", r.cfg.Provider),
					zap.String("provider", res.Provider),
				)
				continue
			}
			vectors[i] = res.Embedding
		}
	}

	if err := r.UpsertMany(ctx, docs, vectors); err != nil {
		return 0, err
	}
	r.logger.Info("policy_store_seeded", zap.Int("documents", len(docs)))
	return len(docs), nil
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

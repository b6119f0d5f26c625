// Package rag retrieves policy documents relevant to an organization profile.
package rag

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
)

var termPattern = regexp.MustCompile(`[a-z0-9]+`)

// Chunk is one retrieved policy with its relevance in [0,1].
type Chunk struct {
	Document domain.PolicyDocument
	Score    float64
	Industry string
}

// Config tunes retrieval.
type Config struct {
	MaxResults          int
	SimilarityThreshold float64
	// VectorSearch enables KNN retrieval before the keyword pass.
	VectorSearch bool
}

// Retriever selects policies by keyword overlap, optionally trying vector search first.
type Retriever struct {
	docs     DocumentSource
	vectors  VectorSource
	embedder domain.Embedder
	cfg      Config
	logger   *zap.Logger
}

// New creates a Retriever. vectors and embedder may be nil; vector search is then skipped.
func New(docs DocumentSource, vectors VectorSource, embedder domain.Embedder, cfg Config, logger *zap.Logger) *Retriever {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{docs: docs, vectors: vectors, embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve returns at most MaxResults policies relevant to query and the profile.
func (r *Retriever) Retrieve(ctx context.Context, profile domain.OrganizationProfile, query string) ([]Chunk, error) {
	if r.cfg.VectorSearch && r.vectors != nil && r.embedder != nil {
		chunks, err := r.vectorSearch(ctx, profile, query)
		if err == nil && len(chunks) > 0 {
			return chunks, nil
		}
		r.logger.Info("vector_retrieval_unavailable_using_keyword_fallback", zap.Error(err))
	} else {
		r.logger.Debug("embedding_retrieval_disabled_using_keyword_fallback")
	}
	return r.keywordSearch(ctx, profile, query)
}

func (r *Retriever) vectorSearch(ctx context.Context, profile domain.OrganizationProfile, query string) ([]Chunk, error) {
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.vectors.Query(ctx, emb.Embedding, r.cfg.MaxResults)
	if err != nil {
		return nil, err
	}

	out := make([]Chunk, 0, len(hits))
	for _, h := range hits {
		if h.Score < r.cfg.SimilarityThreshold {
			continue
		}
		out = append(out, Chunk{Document: h.Document, Score: h.Score, Industry: profile.Industry})
	}
	return out, nil
}

func (r *Retriever) keywordSearch(ctx context.Context, profile domain.OrganizationProfile, query string) ([]Chunk, error) {
	docs, err := r.docs.AllDocuments(ctx, max(r.cfg.MaxResults*10, 100))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	terms := Terms(query + " " + profile.Industry + " " + profile.BusinessModel)

	scored := make([]Chunk, 0, len(docs))
	for _, d := range docs {
		score := MatchScore(terms, d.Content)
		if score == 0 {
			continue
		}
		if d.Authority == "" {
			d.Authority = domain.UnknownAuthority
		}
		scored = append(scored, Chunk{Document: d, Score: score, Industry: profile.Industry})
	}

	slices.SortStableFunc(scored, func(a, b Chunk) int { return cmp.Compare(b.Score, a.Score) })
	if len(scored) > r.cfg.MaxResults {
		scored = scored[:r.cfg.MaxResults]
	}

	r.logger.Info("keyword_retrieval_completed", zap.Int("result_count", len(scored)))
	return scored, nil
}

// Terms returns the distinct lowercase alphanumeric terms of s that are at least three characters long.
func Terms(s string) []string {
	var out []string
	for _, t := range termPattern.FindAllString(strings.ToLower(s), -1) {
		if len(t) >= 3 && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// MatchScore is the fraction of terms occurring anywhere in text, case-insensitively.
func MatchScore(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matches++
		}
	}
	return float64(matches) / float64(len(terms))
}

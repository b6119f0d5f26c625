package ranking

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/metrics"
)

// Config tunes candidate selection and the lexical/semantic blend.
type Config struct {
	ChunkSize      int
	ChunkOverlap   int
	CandidateLimit int
	TopK           int
	LexicalWeight  float64
	SemanticWeight float64
	EmbedCharLimit int // characters of a chunk sent to the embedder
	Parallelism    int // concurrent candidate embeddings
}

// DefaultConfig returns the tuning used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      3500,
		ChunkOverlap:   300,
		CandidateLimit: 12,
		TopK:           3,
		LexicalWeight:  0.4,
		SemanticWeight: 0.6,
		EmbedCharLimit: 6000,
		Parallelism:    4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = d.CandidateLimit
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.LexicalWeight == 0 && c.SemanticWeight == 0 {
		c.LexicalWeight, c.SemanticWeight = d.LexicalWeight, d.SemanticWeight
	}
	if c.EmbedCharLimit <= 0 {
		c.EmbedCharLimit = d.EmbedCharLimit
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	return c
}

// Ranker re-orders lexical candidates by embedding similarity to the query.
// It never fails: any embedding problem degrades to lexical order.
type Ranker struct {
	embedder domain.Embedder
	cfg      Config
	logger   *zap.Logger
}

// NewRanker creates a ranker backed by embedder.
func NewRanker(embedder domain.Embedder, cfg Config, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{embedder: embedder, cfg: cfg.withDefaults(), logger: logger}
}

// Rank windows the records, pre-selects by lexical overlap and re-ranks the survivors.
func (r *Ranker) Rank(ctx context.Context, query string, records []domain.GazetteRecord) domain.RankedAnswer {
	candidates := Candidates(query, records, r.cfg.ChunkSize, r.cfg.ChunkOverlap, r.cfg.CandidateLimit)
	if len(candidates) == 0 {
		return domain.RankedAnswer{}
	}
	return domain.RankedAnswer{Chunks: r.Rerank(ctx, query, candidates)}
}

// Rerank blends each candidate's lexical score with its cosine similarity to the query
// and returns the best TopK. The input slice is not modified.
func (r *Ranker) Rerank(ctx context.Context, query string, candidates []domain.CandidateChunk) []domain.CandidateChunk {
	chunks := slices.Clone(candidates)
	k := min(r.cfg.TopK, len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	similarities, err := r.similarities(ctx, query, texts)
	if err != nil {
		r.degrade(ctx, "rerank", len(chunks), err)
		return chunks[:k]
	}

	for i := range chunks {
		chunks[i].Score = chunks[i].Lexical*r.cfg.LexicalWeight + similarities[i]*r.cfg.SemanticWeight
	}
	sortByScore(chunks)
	return chunks[:k]
}

// SemanticTop splits text into windows and returns the k windows most similar to query.
// When text yields k windows or fewer they are returned unchanged; on embedding failure
// the first k windows are returned.
func (r *Ranker) SemanticTop(ctx context.Context, text, query string, size, overlap, k int) []Window {
	windows := Split(text, size, overlap)
	if k <= 0 || len(windows) <= k {
		return windows
	}

	texts := make([]string, len(windows))
	for i, w := range windows {
		texts[i] = w.Content
	}
	similarities, err := r.similarities(ctx, query, texts)
	if err != nil {
		r.degrade(ctx, "semantic_top", len(windows), err)
		return windows[:k]
	}

	order := make([]int, len(windows))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case similarities[a] > similarities[b]:
			return -1
		case similarities[a] < similarities[b]:
			return 1
		}
		return 0
	})

	out := make([]Window, 0, k)
	for _, i := range order[:k] {
		out = append(out, windows[i])
	}
	return out
}

// similarities embeds the query once and every text concurrently, returning the cosine
// similarity of each text to the query by index.
func (r *Ranker) similarities(ctx context.Context, query string, texts []string) ([]float64, error) {
	q, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for i, text := range texts {
		g.Go(func() error {
			res, err := r.embedder.Embed(gctx, truncate(text, r.cfg.EmbedCharLimit))
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			if len(res.Embedding) != len(q.Embedding) {
				return fmt.Errorf("embed chunk %d: %w (query %d, chunk %d)",
					i, domain.ErrVectorDimMismatch, len(q.Embedding), len(res.Embedding))
			}
			if q.Provider != "" && res.Provider != "" && res.Provider != q.Provider {
				return fmt.Errorf("embed chunk %d: %w (query %s, chunk %s)",
					i, domain.ErrVectorProviderMismatch, q.Provider, res.Provider)
			}
			vectors[i] = res.Embedding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]float64, len(texts))
	for i, v := range vectors {
		out[i] = Cosine(q.Embedding, v)
	}
	return out, nil
}

func (r *Ranker) degrade(ctx context.Context, stage string, n int, err error) {
	metrics.RerankDegradedTotal.Inc()
	r.logger.Warn("semantic_rerank_degraded",
		zap.String("stage", stage),
		zap.Int("candidates", n),
		zap.Bool("cancelled", ctx.Err() != nil),
		zap.Error(err),
	)
}

// truncate cuts s to at most n characters.
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

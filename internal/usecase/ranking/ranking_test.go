package ranking

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kira-labs/kira/internal/domain"
)

func TestSplit(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Split("", 10, 2))
	})

	t.Run("short text is one window", func(t *testing.T) {
		w := Split("hello", 10, 2)
		require.Len(t, w, 1)
		assert.Equal(t, Window{Start: 0, End: 5, Content: "hello"}, w[0])
	})

	t.Run("overlapping windows", func(t *testing.T) {
		w := Split("abcdefghij", 4, 1)
		require.Len(t, w, 3)
		assert.Equal(t, "abcd", w[0].Content)
		assert.Equal(t, "defg", w[1].Content)
		assert.Equal(t, "ghij", w[2].Content)
		assert.Equal(t, 3, w[1].Start)
		assert.Equal(t, 10, w[2].End)
	})

	t.Run("rune boundaries", func(t *testing.T) {
		text := "ééééé"
		w := Split(text, 2, 0)
		require.Len(t, w, 3)
		assert.Equal(t, "éé", w[0].Content)
		assert.Equal(t, 4, w[0].End)
		assert.Equal(t, "é", w[2].Content)
	})

	t.Run("overlap not smaller than size still advances", func(t *testing.T) {
		w := Split("abcdef", 2, 5)
		assert.Equal(t, "abcdef", Reconstruct(w))
		assert.Len(t, w, 5)
	})
}

func TestReconstruct(t *testing.T) {
	texts := []string{
		"",
		"short",
		strings.Repeat("Banks must report quarterly. ", 40),
		"  leading and trailing whitespace is kept  \n",
		strings.Repeat("रिज़र्व बैंक ", 30),
	}
	for _, text := range texts {
		for _, p := range [][2]int{{7, 0}, {7, 3}, {50, 10}, {3500, 300}} {
			got := Reconstruct(Split(text, p[0], p[1]))
			assert.Equal(t, text, got, "size=%d overlap=%d", p[0], p[1])
		}
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The RBI's Capital-Adequacy ratio is 9%; ok?")
	assert.Contains(t, tokens, "the")
	assert.Contains(t, tokens, "rbi")
	assert.Contains(t, tokens, "capital")
	assert.Contains(t, tokens, "adequacy")
	assert.Contains(t, tokens, "ratio")
	assert.NotContains(t, tokens, "is")
	assert.NotContains(t, tokens, "ok")
	assert.Len(t, tokens, 5)
}

func TestLexicalScore(t *testing.T) {
	chunk := "Banks must report quarterly. Capital adequacy ratio of 9% required."

	assert.InDelta(t, 2.0/3.0, LexicalScore("capital adequacy requirement", chunk), 1e-9)
	assert.Equal(t, LexicalScore("capital adequacy requirement", chunk), LexicalScore("CAPITAL ADEQUACY REQUIREMENT", chunk))
	assert.Zero(t, LexicalScore("is it ok", chunk))
	assert.Zero(t, LexicalScore("", chunk))
	assert.Equal(t, 1.0, LexicalScore("banks", chunk))
}

func TestCandidates(t *testing.T) {
	records := []domain.GazetteRecord{
		{ID: "g1", Subject: "Reporting", Text: "Banks must report quarterly."},
		{ID: "g2", Subject: " Capital ", Text: "Banks must report quarterly. Capital adequacy ratio of 9% required."},
		{ID: "", Text: "capital adequacy without an id"},
		{ID: "g3", Text: "   "},
		{ID: "g4", Subject: "Other", Text: "Nothing relevant here."},
		{ID: "g5", Subject: "Capital", Text: "Capital requirement notes."},
	}

	got := Candidates("capital adequacy requirement", records, 3500, 300, 12)
	require.Len(t, got, 2)
	assert.Equal(t, "g2", got[0].SourceID)
	assert.Equal(t, "Capital", got[0].Subject)
	assert.InDelta(t, 0.67, got[0].Lexical, 0.01)
	assert.Equal(t, "g5", got[1].SourceID)
}

func TestCandidates_StableTiesAndLimit(t *testing.T) {
	records := []domain.GazetteRecord{
		{ID: "a", Text: "capital"},
		{ID: "b", Text: "capital"},
		{ID: "c", Text: "capital"},
	}
	got := Candidates("capital", records, 10, 0, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SourceID)
	assert.Equal(t, "b", got[1].SourceID)

	assert.Empty(t, Candidates("it is", records, 10, 0, 2))
}

func TestCosine(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5}
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-12)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 2}, []float32{-1, -2}), 1e-9)
	assert.Zero(t, Cosine([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.False(t, math.IsNaN(Cosine([]float32{0, 0}, []float32{0, 0})))
}

// keywordEmbedder maps text to a 2-d vector by keyword so similarity is predictable.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  func(text string) error
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fail != nil {
		if err := e.fail(text); err != nil {
			return domain.EmbeddingResult{}, err
		}
	}
	lower := strings.ToLower(text)
	vec := []float32{0.01, 0.01}
	if strings.Contains(lower, "capital") {
		vec[0] = 1
	}
	if strings.Contains(lower, "penalty") {
		vec[1] = 1
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

func TestRanker_Rank_CapitalAdequacyExample(t *testing.T) {
	r := NewRanker(&keywordEmbedder{}, Config{}, nil)
	records := []domain.GazetteRecord{
		{ID: "g1", Subject: "Basel", Text: "Banks must report quarterly. Capital adequacy ratio of 9% required."},
	}

	answer := r.Rank(context.Background(), "capital adequacy requirement", records)
	require.Len(t, answer.Chunks, 1)
	top := answer.Chunks[0]
	assert.Equal(t, "g1", top.SourceID)
	assert.InDelta(t, 0.67, top.Lexical, 0.01)
	assert.InDelta(t, 0.4*2.0/3.0+0.6*1.0, top.Score, 0.01)
}

func TestRanker_Rerank_SemanticOverridesLexical(t *testing.T) {
	r := NewRanker(&keywordEmbedder{}, Config{TopK: 2}, nil)
	candidates := []domain.CandidateChunk{
		{SourceID: "lex", Content: "penalty notice for banks", Lexical: 0.5, Score: 0.5},
		{SourceID: "sem", Content: "capital buffers", Lexical: 0.4, Score: 0.4},
		{SourceID: "low", Content: "misc", Lexical: 0.1, Score: 0.1},
	}

	got := r.Rerank(context.Background(), "capital", candidates)
	require.Len(t, got, 2)
	assert.Equal(t, "sem", got[0].SourceID)
	assert.Equal(t, 0.5, candidates[0].Score, "input must not be mutated")
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Score, -1.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}
}

func TestRanker_Rerank_CustomWeights(t *testing.T) {
	r := NewRanker(&keywordEmbedder{}, Config{TopK: 1, LexicalWeight: 1, SemanticWeight: 0}, nil)
	candidates := []domain.CandidateChunk{
		{SourceID: "lex", Content: "penalty", Lexical: 0.9, Score: 0.9},
		{SourceID: "sem", Content: "capital", Lexical: 0.2, Score: 0.2},
	}
	got := r.Rerank(context.Background(), "capital", candidates)
	require.Len(t, got, 1)
	assert.Equal(t, "lex", got[0].SourceID)
}

func TestRanker_Rerank_DegradesOnEmbeddingFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	emb := &keywordEmbedder{fail: func(text string) error {
		if strings.Contains(text, "capital buffers") {
			return domain.NewLLMError(domain.KindAllProvidersFailed, "", domain.OperationEmbedding, errors.New("down"))
		}
		return nil
	}}
	r := NewRanker(emb, Config{TopK: 2}, zap.New(core))
	candidates := []domain.CandidateChunk{
		{SourceID: "a", Content: "penalty notice", Lexical: 0.5, Score: 0.5},
		{SourceID: "b", Content: "capital buffers", Lexical: 0.4, Score: 0.4},
		{SourceID: "c", Content: "misc", Lexical: 0.1, Score: 0.1},
	}

	got := r.Rerank(context.Background(), "capital", candidates)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SourceID)
	assert.Equal(t, "b", got[1].SourceID)
	assert.Equal(t, 0.5, got[0].Score)
	assert.Equal(t, 1, logs.FilterMessage("semantic_rerank_degraded").Len())
}

func TestRanker_Rerank_DegradesOnDimensionMismatch(t *testing.T) {
	emb := &keywordEmbedder{}
	r := NewRanker(embedderFunc(func(ctx context.Context, text string) (domain.EmbeddingResult, error) {
		if text == "query" {
			return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
		}
		return emb.Embed(ctx, text)
	}), Config{TopK: 1}, nil)

	got := r.Rerank(context.Background(), "query", []domain.CandidateChunk{
		{SourceID: "a", Content: "x", Lexical: 0.3, Score: 0.3},
		{SourceID: "b", Content: "y", Lexical: 0.2, Score: 0.2},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].SourceID)
	assert.Equal(t, 0.3, got[0].Score)
}

func TestRanker_Rerank_DegradesOnProviderMismatch(t *testing.T) {
	r := NewRanker(embedderFunc(func(_ context.Context, text string) (domain.EmbeddingResult, error) {
		if text == "capital" {
			return domain.EmbeddingResult{Embedding: []float32{1, 0}, Provider: domain.ProviderOpenAI}, nil
		}
		// Chunks served from another model: same size, incomparable space.
		return domain.EmbeddingResult{Embedding: []float32{0, 1}, Provider: domain.ProviderGemini}, nil
	}), Config{}, nil)

	got := r.Rerank(context.Background(), "capital", []domain.CandidateChunk{
		{SourceID: "a", Content: "x", Lexical: 0.3, Score: 0.3},
		{SourceID: "b", Content: "y", Lexical: 0.2, Score: 0.2},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SourceID)
	assert.Equal(t, 0.3, got[0].Score)
	assert.Equal(t, 0.2, got[1].Score)
}

func TestRanker_Rerank_TruncatesChunkText(t *testing.T) {
	var mu sync.Mutex
	var longest int
	r := NewRanker(embedderFunc(func(_ context.Context, text string) (domain.EmbeddingResult, error) {
		mu.Lock()
		longest = max(longest, len([]rune(text)))
		mu.Unlock()
		return domain.EmbeddingResult{Embedding: []float32{1}}, nil
	}), Config{EmbedCharLimit: 10}, nil)

	r.Rerank(context.Background(), "q", []domain.CandidateChunk{{Content: strings.Repeat("ab", 50), Lexical: 1}})
	assert.Equal(t, 10, longest)
}

func TestRanker_SemanticTop(t *testing.T) {
	text := "capital one. " + strings.Repeat("x", 20) + " penalty two. " + strings.Repeat("y", 20) + " capital three"
	emb := &keywordEmbedder{}
	r := NewRanker(emb, Config{}, nil)

	t.Run("few windows returned as-is", func(t *testing.T) {
		got := r.SemanticTop(context.Background(), "short", "capital", 100, 10, 3)
		require.Len(t, got, 1)
		assert.Equal(t, "short", got[0].Content)
	})

	t.Run("ranks by similarity", func(t *testing.T) {
		got := r.SemanticTop(context.Background(), text, "penalty", 15, 0, 1)
		require.Len(t, got, 1)
		assert.Contains(t, got[0].Content, "penalty")
	})

	t.Run("falls back to leading windows", func(t *testing.T) {
		failing := NewRanker(embedderFunc(func(context.Context, string) (domain.EmbeddingResult, error) {
			return domain.EmbeddingResult{}, errors.New("down")
		}), Config{}, nil)
		all := Split(text, 15, 0)
		got := failing.SemanticTop(context.Background(), text, "penalty", 15, 0, 2)
		assert.Equal(t, all[:2], got)
	})
}

type embedderFunc func(ctx context.Context, text string) (domain.EmbeddingResult, error)

func (f embedderFunc) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return f(ctx, text)
}

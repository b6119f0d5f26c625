package document

import (
	"context"
	"testing"

	"github.com/kira-labs/kira/internal/db"
	"github.com/kira-labs/kira/internal/domain"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	pingFn        func(ctx context.Context) error
	hsetFn        func(ctx context.Context, key string, fields map[string]string) error
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	hgetAllFn     func(ctx context.Context, key string) (map[string]string, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchListFn  func(
		ctx context.Context, index, query string, offset, limit int, fields []string,
	) (*db.SearchResult, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchList(
	ctx context.Context, index, query string, offset, limit int, fields []string,
) (*db.SearchResult, error) {
	if m.searchListFn != nil {
		return m.searchListFn(ctx, index, query, offset, limit, fields)
	}
	return &db.SearchResult{}, nil
}

type staticFallback struct {
	docs  []domain.PolicyDocument
	err   error
	calls int
}

func (f *staticFallback) Load() ([]domain.PolicyDocument, error) {
	f.calls++
	return f.docs, f.err
}

var testConfig = Config{KeyPrefix: "kira:", IndexName: "kira_policies", Dimensions: 4}

func newTestRepo(t *testing.T, fb *staticFallback) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	if fb == nil {
		return New(ms, nil, testConfig, nil), ms
	}
	return New(ms, fb, testConfig, nil), ms
}

func testPolicy(id, authority string) domain.PolicyDocument {
	return domain.PolicyDocument{
		ID:            id,
		Name:          "Policy " + id,
		Authority:     authority,
		Version:       "v1",
		EffectiveDate: "2025-01-01",
		Status:        domain.StatusProcessed,
		Content:       "content of " + id,
	}
}

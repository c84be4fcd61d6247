package chunk

import (
	"context"

	"github.com/kailas-cloud/kbchat/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string, deleteDocs bool) error
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchCountFn func(ctx context.Context, index string) (int, error)
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string, deleteDocs bool) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name, deleteDocs)
	}
	return nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index)
	}
	return 0, nil
}

package chunk

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/kbchat/internal/db"
	"github.com/kailas-cloud/kbchat/internal/db/memory"
	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/document"
	"github.com/kailas-cloud/kbchat/internal/domain/vector"
)

func record(id, text string, offset int, v ...float32) vector.Record {
	return vector.Record{
		ID:     id,
		Text:   text,
		Vector: v,
		Metadata: document.Metadata{
			Source:     "guide.txt",
			StartScope: document.Scope{Offset: offset}.String(),
		},
	}
}

func TestUpsert_CreatesIndexAndWritesHashes(t *testing.T) {
	var (
		created *db.IndexDefinition
		written []db.HashSetItem
	)
	ms := &mockStore{
		createIndexFn: func(_ context.Context, def *db.IndexDefinition) error {
			created = def
			return nil
		},
		hsetMultiFn: func(_ context.Context, items []db.HashSetItem) error {
			written = items
			return nil
		},
	}

	err := New(ms, Options{HNSWM: 16}).Upsert(context.Background(), "doc1", []vector.Record{
		record("a", "alpha", 0, 1, 0, 0),
		record("b", "beta", 10, 0, 1, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil || created.Name != "kb:doc1" || created.Prefixes[0] != "kb:doc1:" {
		t.Fatalf("unexpected index %+v", created)
	}
	if vf := created.VectorField(); vf == nil || vf.VectorDim != 3 || vf.VectorM != 16 {
		t.Errorf("unexpected vector field %+v", vf)
	}
	if len(written) != 2 || written[1].Key != "kb:doc1:b" {
		t.Fatalf("unexpected items %+v", written)
	}
	if written[1].Fields["text"] != "beta" || written[1].Fields["start_offset"] != "10" {
		t.Errorf("unexpected fields %v", written[1].Fields)
	}
}

func TestUpsert_ExistingIndexIsFine(t *testing.T) {
	ms := &mockStore{
		createIndexFn: func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists },
	}
	if err := New(ms, Options{}).Upsert(context.Background(), "doc1", []vector.Record{record("a", "x", 0, 1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	err := New(&mockStore{}, Options{}).Upsert(context.Background(), "doc1", []vector.Record{
		record("a", "x", 0, 1, 2),
		record("b", "y", 0, 1),
	})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestQuery_MissingIndexIsEmpty(t *testing.T) {
	ms := &mockStore{
		searchKNNFn: func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
			return nil, db.ErrIndexNotFound
		},
	}
	got, err := New(ms, Options{}).Query(context.Background(), "nope", []float32{1}, 6)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v, %v", got, err)
	}
}

func TestQuery_StoreError(t *testing.T) {
	ms := &mockStore{
		searchKNNFn: func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
			return nil, &db.Error{Op: db.OpSearch, Err: context.DeadlineExceeded}
		},
	}
	if _, err := New(ms, Options{}).Query(context.Background(), "doc1", []float32{1}, 6); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteNamespace_DropsWithDocs(t *testing.T) {
	var gotName string
	var gotDD bool
	ms := &mockStore{
		dropIndexFn: func(_ context.Context, name string, dd bool) error {
			gotName, gotDD = name, dd
			return db.ErrIndexNotFound
		},
	}
	if err := New(ms, Options{}).DeleteNamespace(context.Background(), "doc1"); err != nil {
		t.Fatalf("missing index must not fail: %v", err)
	}
	if gotName != "kb:doc1" || !gotDD {
		t.Errorf("DropIndex(%q, %v)", gotName, gotDD)
	}
}

func TestRoundTrip_MemoryStore(t *testing.T) {
	ctx := context.Background()
	repo := New(memory.NewStore(), Options{})

	err := repo.Upsert(ctx, "guide.txt", []vector.Record{
		record("a", "alpha", 0, 1, 0),
		record("b", "beta", 12, 0, 1),
	})
	if err != nil {
		t.Fatal(err)
	}

	matches, err := repo.Query(ctx, "guide.txt", []float32{1, 0.2}, 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ID != "a" || matches[0].Text != "alpha" {
		t.Fatalf("unexpected matches %+v", matches)
	}
	if matches[1].Metadata.StartOffset() != 12 || matches[1].Metadata.Source != "guide.txt" {
		t.Errorf("metadata not restored: %+v", matches[1].Metadata)
	}
	if n, _ := repo.Count(ctx, "guide.txt"); n != 2 {
		t.Errorf("count = %d", n)
	}

	if err := repo.DeleteNamespace(ctx, "guide.txt"); err != nil {
		t.Fatal(err)
	}
	matches, err = repo.Query(ctx, "guide.txt", []float32{1, 0}, 6)
	if err != nil || len(matches) != 0 {
		t.Fatalf("expected no matches after delete, got %v, %v", matches, err)
	}
}

func TestSanitizeNamespace(t *testing.T) {
	if got := SanitizeNamespace("doc_1-a"); got != "doc_1-a" {
		t.Errorf("valid name changed to %q", got)
	}
	a, b := SanitizeNamespace("a.txt"), SanitizeNamespace("a:txt")
	if a == b {
		t.Errorf("distinct names collide: %q", a)
	}
	if !strings.HasPrefix(a, "a_txt-") || !db.IsValidIdentifier(a) {
		t.Errorf("unexpected sanitised name %q", a)
	}
	if !db.IsValidIdentifier(SanitizeNamespace("")) {
		t.Error("empty namespace must still yield a valid identifier")
	}
}

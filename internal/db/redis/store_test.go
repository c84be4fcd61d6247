package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/kbchat/internal/db"
)

// --- client.go ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	if err := NewStoreForTest(c).Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	if err := NewStoreForTest(c).Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestIsRedisErr_IgnoresCase(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisError("UNKNOWN INDEX NAME")))

	s := NewStoreForTest(c)
	err := s.do(context.Background(), s.b().Ping().Build()).Error()
	if !isRedisErr(err, "unknown index name") {
		t.Errorf("expected match for %v", err)
	}
	if isRedisErr(context.Canceled, "canceled") {
		t.Error("non-server errors must not match")
	}
}

// --- hash.go ---

func TestHSetMulti_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(2)),
			mock.Result(mock.RedisInt64(2)),
		})

	err := NewStoreForTest(c).HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "kb:doc1:a", Fields: map[string]string{"text": "one"}},
		{Key: "kb:doc1:b", Fields: map[string]string{"text": "two"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSetMulti_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{mock.ErrorResult(context.DeadlineExceeded)})

	err := NewStoreForTest(c).HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "k", Fields: map[string]string{"f": "v"}},
	})
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

func TestHSetMulti_Empty(t *testing.T) {
	if err := NewStoreForTest(nil).HSetMulti(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHGetAll_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "mykey")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"f1": mock.RedisString("v1"),
			"f2": mock.RedisString("v2"),
		})))

	m, err := NewStoreForTest(c).HGetAll(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["f1"] != "v1" || m["f2"] != "v2" {
		t.Errorf("unexpected map: %v", m)
	}
}

func TestHGetAll_Missing(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "mykey")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})))

	_, err := NewStoreForTest(c).HGetAll(context.Background(), "mykey")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestDel_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "k1", "k2")).
		Return(mock.Result(mock.RedisInt64(2)))

	if err := NewStoreForTest(c).Del(context.Background(), "k1", "k2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDel_NoKeys(t *testing.T) {
	if err := NewStoreForTest(nil).Del(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScan_MultiPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	first := true
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		DoAndReturn(func(_ context.Context, _ rueidis.Completed) rueidis.RedisResult {
			if first {
				first = false
				return mock.Result(mock.RedisArray(
					mock.RedisInt64(42),
					mock.RedisArray(mock.RedisString("key1")),
				))
			}
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(0),
				mock.RedisArray(mock.RedisString("key2")),
			))
		}).Times(2)

	keys, err := NewStoreForTest(c).Scan(context.Background(), "kb:doc1:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

// --- kv.go ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "emb:1")).
		Return(mock.Result(mock.RedisBlobString("blob")))

	data, err := NewStoreForTest(c).Get(context.Background(), "emb:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "blob" {
		t.Errorf("got %q", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "emb:1")).
		Return(mock.Result(mock.RedisNil()))

	_, err := NewStoreForTest(c).Get(context.Background(), "emb:1")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetWithTTL_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "k", "v", "EX", "60")).
		Return(mock.Result(mock.RedisString("OK")))

	if err := NewStoreForTest(c).SetWithTTL(context.Background(), "k", []byte("v"), 60*1e9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- index.go ---

func TestCreateIndex_Args(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match(
			"FT.CREATE", "kb:doc1", "ON", "HASH", "PREFIX", "1", "kb:doc1:", "SCHEMA",
			"text", "TEXT",
			"vector", "VECTOR", "HNSW", "10",
			"TYPE", "FLOAT32", "DIM", "3", "DISTANCE_METRIC", "COSINE", "M", "16", "EF_CONSTRUCTION", "200",
		)).
		Return(mock.Result(mock.RedisString("OK")))

	def, err := db.NewIndex("kb:doc1").
		Prefix("kb:doc1:").
		Text("text").
		VectorHNSW("vector", 3, db.DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if err := NewStoreForTest(c).CreateIndex(context.Background(), def); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	err := NewStoreForTest(c).CreateIndex(context.Background(), &db.IndexDefinition{
		Name:   "kb:doc1",
		Fields: []db.IndexField{{Name: "text", Type: db.IndexFieldText}},
	})
	if !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestDropIndex_DeleteDocs(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "kb:doc1", "DD")).
		Return(mock.Result(mock.RedisString("OK")))

	if err := NewStoreForTest(c).DropIndex(context.Background(), "kb:doc1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDropIndex_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "kb:doc1")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	err := NewStoreForTest(c).DropIndex(context.Background(), "kb:doc1", false)
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	tests := []struct {
		name   string
		result rueidis.RedisResult
		want   bool
	}{
		{"present", mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("kb:doc1"))), true},
		{"absent", mock.Result(mock.RedisError("Unknown index name")), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)
			c.EXPECT().Do(gomock.Any(), mock.Match("FT.INFO", "kb:doc1")).Return(tc.result)

			got, err := NewStoreForTest(c).IndexExists(context.Background(), "kb:doc1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildFieldArgs_Errors(t *testing.T) {
	if _, err := buildFieldArgs(&db.IndexField{Type: db.IndexFieldTag}); err == nil {
		t.Error("expected error for empty field name")
	}
	if _, err := buildFieldArgs(&db.IndexField{Name: "f", Type: db.IndexFieldType(99)}); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := buildFieldArgs(&db.IndexField{Name: "f", Type: db.IndexFieldVector}); err == nil {
		t.Error("expected error for zero vector dim")
	}
}

// --- search.go ---

func TestSearchKNN_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[1] == "kb:doc1" &&
				cmd[2] == "*=>[KNN 6 @vector $BLOB]" && cmd[len(cmd)-1] == "2"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("kb:doc1:a"),
			mock.RedisArray(
				mock.RedisString("text"),
				mock.RedisString("hello"),
				mock.RedisString("__vector_score"),
				mock.RedisString("0.1"),
			),
		)))

	result, err := NewStoreForTest(c).SearchKNN(context.Background(), &db.KNNQuery{
		IndexName:    "kb:doc1",
		Vector:       []float32{0.1, 0.2},
		K:            6,
		ReturnFields: []string{"text"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	e := result.Entries[0]
	if e.Key != "kb:doc1:a" || e.Fields["text"] != "hello" {
		t.Errorf("unexpected entry %+v", e)
	}
	if _, ok := e.Fields["__vector_score"]; ok {
		t.Error("score field should be stripped")
	}
	if e.Score < 0.89 || e.Score > 0.91 {
		t.Errorf("expected score ~0.9, got %f", e.Score)
	}
}

func TestSearchKNN_MissingIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisError("kb:doc1: no such index")))

	_, err := NewStoreForTest(c).SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "kb:doc1",
		Vector:    []float32{0.1},
		K:         6,
	})
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	if _, err := s.SearchKNN(ctx, &db.KNNQuery{Vector: []float32{0.1}, K: 10}); err == nil {
		t.Error("expected error for empty index name")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", K: 10}); err == nil {
		t.Error("expected error for empty vector")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", Vector: []float32{0.1}}); err == nil {
		t.Error("expected error for k=0")
	}
}

func TestSearchCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "kb:doc1", "*", "LIMIT", "0", "0")).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(42))))

	n, err := NewStoreForTest(c).SearchCount(context.Background(), "kb:doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
}

func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}

package chunk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/kbchat/internal/db"
	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/document"
	"github.com/kailas-cloud/kbchat/internal/domain/vector"
)

// KeyPrefix namespaces every key the repository writes.
const KeyPrefix = "kb:"

const (
	fieldMetadata    = "metadata"
	fieldSource      = "source"
	fieldStartOffset = "start_offset"
)

// store is the consumer interface for chunk records (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index string) (int, error)
}

// Options tune the per-namespace HNSW index.
type Options struct {
	HNSWM  int
	HNSWEF int
}

// Repo stores chunk vectors as hashes, one FT index per namespace.
type Repo struct {
	store store
	opts  Options
}

// New creates a chunk repository.
func New(s store, opts Options) *Repo {
	return &Repo{store: s, opts: opts}
}

// Upsert writes records into the namespace, creating its index on first use
// with the dimension of the first vector.
func (r *Repo) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	dim := len(records[0].Vector)
	if dim == 0 {
		return fmt.Errorf("record %q has no vector: %w", records[0].ID, domain.ErrVectorDimMismatch)
	}

	items := make([]db.HashSetItem, len(records))
	for i := range records {
		rec := &records[i]
		if len(rec.Vector) != dim {
			return fmt.Errorf("record %d has %d dims, want %d: %w", i, len(rec.Vector), dim, domain.ErrVectorDimMismatch)
		}
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		items[i] = db.HashSetItem{
			Key: keyPrefix(namespace) + id,
			Fields: map[string]string{
				vector.TextField:      rec.Text,
				db.DefaultVectorField: db.VectorToBytes(rec.Vector),
				fieldMetadata:         string(meta),
				fieldSource:           rec.Metadata.Source,
				fieldStartOffset:      strconv.Itoa(rec.Metadata.StartOffset()),
			},
		}
	}

	if err := r.ensureIndex(ctx, namespace, dim); err != nil {
		return err
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("write %d chunks to %s: %w", len(items), namespace, err)
	}
	return nil
}

// Query returns the k nearest records of the namespace; an unknown namespace has none.
func (r *Repo) Query(ctx context.Context, namespace string, v []float32, k int) ([]vector.Match, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    IndexName(namespace),
		Vector:       v,
		K:            k,
		ReturnFields: []string{vector.TextField, fieldMetadata},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("search %s: %w", namespace, err)
	}

	prefix := keyPrefix(namespace)
	matches := make([]vector.Match, 0, len(res.Entries))
	for _, e := range res.Entries {
		var meta document.Metadata
		if raw := e.Fields[fieldMetadata]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", e.Key, err)
			}
		}
		matches = append(matches, vector.Match{
			ID:       strings.TrimPrefix(e.Key, prefix),
			Text:     e.Fields[vector.TextField],
			Metadata: meta,
			Score:    e.Score,
		})
	}
	return matches, nil
}

// DeleteNamespace drops the namespace index together with its records.
func (r *Repo) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := r.store.DropIndex(ctx, IndexName(namespace), true); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop %s: %w", namespace, err)
	}
	return nil
}

// Count returns the number of records in the namespace.
func (r *Repo) Count(ctx context.Context, namespace string) (int, error) {
	n, err := r.store.SearchCount(ctx, IndexName(namespace))
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s: %w", namespace, err)
	}
	return n, nil
}

func (r *Repo) ensureIndex(ctx context.Context, namespace string, dim int) error {
	def, err := db.NewIndex(IndexName(namespace)).
		Prefix(keyPrefix(namespace)).
		Text(vector.TextField).
		Tag(fieldSource).
		Numeric(fieldStartOffset).
		VectorHNSW(db.DefaultVectorField, dim, db.DistanceCosine, r.opts.HNSWM, r.opts.HNSWEF).
		Build()
	if err != nil {
		return fmt.Errorf("index definition for %s: %w", namespace, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index for %s: %w", namespace, err)
	}
	return nil
}

// IndexName maps a namespace to its index name.
func IndexName(namespace string) string {
	return KeyPrefix + SanitizeNamespace(namespace)
}

func keyPrefix(namespace string) string {
	return IndexName(namespace) + ":"
}

// SanitizeNamespace keeps [a-zA-Z0-9_-] and replaces everything else with '_'.
// A changed name gets a hash suffix so distinct namespaces stay distinct.
func SanitizeNamespace(namespace string) string {
	var b strings.Builder
	changed := namespace == ""
	for _, r := range namespace {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
		if ok {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
		changed = true
	}
	if !changed {
		return namespace
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(namespace))
	return fmt.Sprintf("%s-%08x", b.String(), h.Sum32())
}

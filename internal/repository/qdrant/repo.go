package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/document"
	"github.com/kailas-cloud/kbchat/internal/domain/vector"
)

const (
	payloadNamespace   = "namespace"
	payloadMetadata    = "metadata"
	payloadSource      = "source"
	payloadStartOffset = "start_offset"

	upsertBatch = 100
)

// client is the subset of *qdrant.Client the repository uses (ISP).
type client interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
}

// Repo keeps every namespace in one collection and scopes each call with a
// payload filter on "namespace".
type Repo struct {
	client     client
	collection string
	logger     *zap.Logger

	mu    sync.Mutex
	ready bool
}

// Config holds the Qdrant connection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// Connect dials Qdrant over gRPC.
func Connect(cfg Config) (*qdrant.Client, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return c, nil
}

// New creates a repository over collection.
func New(c client, collection string, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{client: c, collection: collection, logger: logger}
}

// HealthCheck probes the Qdrant server.
func (r *Repo) HealthCheck(ctx context.Context) error {
	if _, err := r.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health: %w", err)
	}
	return nil
}

// Upsert writes records of one namespace. The collection is created with the
// dimension of the first vector when missing.
func (r *Repo) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	dim := len(records[0].Vector)
	if dim == 0 {
		return fmt.Errorf("record %q has no vector: %w", records[0].ID, domain.ErrVectorDimMismatch)
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i := range records {
		if len(records[i].Vector) != dim {
			return fmt.Errorf("record %d has %d dims, want %d: %w",
				i, len(records[i].Vector), dim, domain.ErrVectorDimMismatch)
		}
		p, err := toPoint(namespace, &records[i])
		if err != nil {
			return err
		}
		points[i] = p
	}

	if err := r.ensureCollection(ctx, dim); err != nil {
		return err
	}
	for start := 0; start < len(points); start += upsertBatch {
		end := min(start+upsertBatch, len(points))
		_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: r.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points[start:end],
		})
		if err != nil {
			return fmt.Errorf("upsert %s points %d-%d: %w", namespace, start, end, err)
		}
	}
	return nil
}

// Query returns the k nearest records of the namespace.
func (r *Repo) Query(ctx context.Context, namespace string, v []float32, k int) ([]vector.Match, error) {
	ok, err := r.exists(ctx)
	if err != nil || !ok {
		return nil, err
	}
	res, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQueryDense(v),
		Filter:         namespaceFilter(namespace),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", namespace, err)
	}
	return fromScored(res)
}

// DeleteNamespace removes every point of the namespace.
func (r *Repo) DeleteNamespace(ctx context.Context, namespace string) error {
	ok, err := r.exists(ctx)
	if err != nil || !ok {
		return err
	}
	_, err = r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(namespaceFilter(namespace)),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", namespace, err)
	}
	return nil
}

// Count returns the exact number of points in the namespace.
func (r *Repo) Count(ctx context.Context, namespace string) (int, error) {
	ok, err := r.exists(ctx)
	if err != nil || !ok {
		return 0, err
	}
	n, err := r.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: r.collection,
		Filter:         namespaceFilter(namespace),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", namespace, err)
	}
	return int(n), nil
}

func (r *Repo) exists(ctx context.Context) (bool, error) {
	r.mu.Lock()
	ready := r.ready
	r.mu.Unlock()
	if ready {
		return true, nil
	}
	ok, err := r.client.CollectionExists(ctx, r.collection)
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", r.collection, err)
	}
	return ok, nil
}

func (r *Repo) ensureCollection(ctx context.Context, dim int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}

	ok, err := r.client.CollectionExists(ctx, r.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", r.collection, err)
	}
	if !ok {
		err = r.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: r.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", r.collection, err)
		}
		_, err = r.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: r.collection,
			FieldName:      payloadNamespace,
			FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("index %s.%s: %w", r.collection, payloadNamespace, err)
		}
		r.logger.Info("Created qdrant collection", zap.String("collection", r.collection), zap.Int("dim", dim))
	}
	r.ready = true
	return nil
}

func namespaceFilter(namespace string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadNamespace, namespace)},
	}
}

// PointID maps a record id onto the UUID space Qdrant accepts.
// UUIDs pass through; anything else is hashed deterministically.
func PointID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func toPoint(namespace string, rec *vector.Record) (*qdrant.PointStruct, error) {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(PointID(rec.ID)),
		Vectors: qdrant.NewVectorsDense(rec.Vector),
		Payload: map[string]*qdrant.Value{
			payloadNamespace:   qdrant.NewValueString(namespace),
			vector.TextField:   qdrant.NewValueString(rec.Text),
			payloadMetadata:    qdrant.NewValueString(string(meta)),
			payloadSource:      qdrant.NewValueString(rec.Metadata.Source),
			payloadStartOffset: qdrant.NewValueInt(int64(rec.Metadata.StartOffset())),
		},
	}, nil
}

func fromScored(points []*qdrant.ScoredPoint) ([]vector.Match, error) {
	out := make([]vector.Match, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		var meta document.Metadata
		if raw := payload[payloadMetadata].GetStringValue(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", p.GetId().GetUuid(), err)
			}
		}
		out = append(out, vector.Match{
			ID:       p.GetId().GetUuid(),
			Text:     payload[vector.TextField].GetStringValue(),
			Metadata: meta,
			Score:    float64(p.GetScore()),
		})
	}
	return out, nil
}

package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/kailas-cloud/kbchat/internal/db"
)

// CreateIndex creates an FT index over hashes from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes an FT index; deleteDocs appends DD so the indexed hashes go too.
func (s *Store) DropIndex(ctx context.Context, name string, deleteDocs bool) error {
	args := []string{name}
	if deleteDocs {
		args = append(args, "DD")
	}
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isUnknownIndex(err) {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isUnknownIndex(err) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// Redis 8 says "Unknown index name", older modules "no such index".
func isUnknownIndex(err error) bool {
	return isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index")
}

func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if idx.Name == "" {
		return nil, errors.New("index name is required")
	}
	if len(idx.Fields) == 0 {
		return nil, errors.New("at least one field is required")
	}

	args := []string{idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}
	args = append(args, "SCHEMA")

	for i := range idx.Fields {
		fieldArgs, err := buildFieldArgs(&idx.Fields[i])
		if err != nil {
			return nil, err
		}
		args = append(args, fieldArgs...)
	}
	return args, nil
}

func buildFieldArgs(f *db.IndexField) ([]string, error) {
	if f.Name == "" {
		return nil, errors.New("field name is required")
	}

	switch f.Type {
	case db.IndexFieldNumeric:
		return []string{f.Name, "NUMERIC"}, nil
	case db.IndexFieldText:
		return []string{f.Name, "TEXT"}, nil
	case db.IndexFieldTag:
		return []string{f.Name, "TAG"}, nil
	case db.IndexFieldVector:
		vectorArgs, err := buildVectorFieldArgs(f)
		if err != nil {
			return nil, err
		}
		return append([]string{f.Name}, vectorArgs...), nil
	default:
		return nil, errors.New("unknown field type")
	}
}

func buildVectorFieldArgs(f *db.IndexField) ([]string, error) {
	if f.VectorDim <= 0 {
		return nil, errors.New("vector DIM must be positive")
	}

	algo := f.VectorAlgo
	if algo == "" {
		algo = db.VectorHNSW
	}
	distance := f.VectorDistance
	if distance == "" {
		distance = db.DistanceCosine
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.VectorDim),
		"DISTANCE_METRIC", string(distance),
	}
	if algo == db.VectorHNSW {
		if f.VectorM > 0 {
			attrs = append(attrs, "M", strconv.Itoa(f.VectorM))
		}
		if f.VectorEFConstruct > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.VectorEFConstruct))
		}
	}

	out := make([]string, 0, 3+len(attrs))
	out = append(out, "VECTOR", string(algo), strconv.Itoa(len(attrs)))
	return append(out, attrs...), nil
}

package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/kira-labs/kira/internal/db"
)

// CreateIndex creates an FT index over hashes.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	if err := s.do(ctx, s.b().Arbitrary("FT.CREATE").Args(args...).Build()).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes an FT index by name, keeping the documents.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	if err := s.do(ctx, s.b().Arbitrary("FT.DROPINDEX").Args(name).Build()).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists probes FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	if err := s.do(ctx, s.b().Arbitrary("FT.INFO").Args(name).Build()).Error(); err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	args := []string{idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}
	args = append(args, "SCHEMA")

	for _, f := range idx.Fields {
		fieldArgs, err := buildFieldArgs(f)
		if err != nil {
			return nil, err
		}
		args = append(args, fieldArgs...)
	}
	return args, nil
}

func buildFieldArgs(f db.IndexField) ([]string, error) {
	switch f.Type {
	case db.IndexFieldTag:
		return []string{f.Name, "TAG"}, nil
	case db.IndexFieldText:
		return []string{f.Name, "TEXT"}, nil
	case db.IndexFieldVector:
		algo := f.VectorAlgo
		if algo == "" {
			algo = db.VectorFlat
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
		out := []string{f.Name, "VECTOR", string(algo), strconv.Itoa(len(attrs))}
		return append(out, attrs...), nil
	default:
		return nil, errors.New("unknown field type for " + f.Name)
	}
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/becutandavid/podcasts-backend/internal/db"
)

// CreateIndex creates an FT index from the given definition.
// Server errors wrap db.ErrIndexRejected; transport and context errors do not.
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
		if _, ok := rueidis.IsRedisErr(err); ok {
			err = fmt.Errorf("%w: %w", db.ErrIndexRejected, err)
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes an FT index by name. Documents are kept.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isUnknownIndex(err) {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexInfo reads an index definition back via FT.INFO.
// It returns db.ErrIndexNotFound when the index does not exist.
func (s *Store) IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return parseIndexInfo(name, raw), nil
}

// SupportsTextSearch reports whether TEXT fields may be declared.
func (s *Store) SupportsTextSearch(_ context.Context) bool {
	return s.textSearch
}

// Redis says "Unknown index name", valkey-search says "Index with name ... not found".
func isUnknownIndex(err error) bool {
	return isRedisErr(err, "unknown index name") || isRedisErr(err, "not found")
}

func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if idx.Name == "" {
		return nil, errors.New("index name is required")
	}
	if len(idx.Fields) == 0 {
		return nil, errors.New("at least one field is required")
	}

	args := []string{idx.Name}

	storage := idx.StorageType
	if storage == "" {
		storage = db.StorageHash
	}
	args = append(args, "ON", string(storage))

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

	args := []string{f.Name}

	switch f.Type {
	case db.IndexFieldNumeric:
		args = append(args, "NUMERIC")
	case db.IndexFieldText:
		args = append(args, "TEXT")
	case db.IndexFieldTag:
		args = append(args, "TAG")
		if f.TagSeparator != "" {
			if len(f.TagSeparator) != 1 {
				return nil, errors.New("tag SEPARATOR must be a single character")
			}
			args = append(args, "SEPARATOR", f.TagSeparator)
		}
		if f.TagCaseSensitive {
			args = append(args, "CASESENSITIVE")
		}
	case db.IndexFieldVector:
		vectorArgs, err := buildVectorFieldArgs(f)
		if err != nil {
			return nil, err
		}
		args = append(args, vectorArgs...)
	default:
		return nil, errors.New("unknown field type")
	}

	return args, nil
}

func buildVectorFieldArgs(f *db.IndexField) ([]string, error) {
	if f.VectorDim <= 0 {
		return nil, errors.New("vector DIM must be positive")
	}

	algo := f.VectorAlgo
	if algo == "" {
		algo = db.VectorFlat
	}

	distance := f.VectorDistance
	if distance == "" {
		distance = db.DistanceL2
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
		if f.VectorEFRuntime > 0 {
			attrs = append(attrs, "EF_RUNTIME", strconv.Itoa(f.VectorEFRuntime))
		}
	}

	result := make([]string, 0, 3+len(attrs))
	result = append(result, "VECTOR", string(algo), strconv.Itoa(len(attrs)))
	result = append(result, attrs...)

	return result, nil
}

// --- FT.INFO parsing ---

// parseIndexInfo reads the "attributes" section of an FT.INFO reply.
// Redis reports vector parameters flat on the attribute; valkey-search nests them
// under "index" and "algorithm", so nested arrays are flattened into one map.
func parseIndexInfo(name string, raw []rueidis.RedisMessage) *db.IndexInfo {
	info := &db.IndexInfo{Name: name}

	for i := 0; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil || !strings.EqualFold(key, "attributes") {
			continue
		}
		attrs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		for _, attr := range attrs {
			pairs, err := attr.ToArray()
			if err != nil {
				continue
			}
			props := make(map[string]string)
			flattenPairs(pairs, props)
			if f, ok := fieldFromProps(props); ok {
				info.Fields = append(info.Fields, f)
			}
		}
	}

	return info
}

func flattenPairs(pairs []rueidis.RedisMessage, out map[string]string) {
	for j := 0; j+1 < len(pairs); j += 2 {
		key, err := pairs[j].ToString()
		if err != nil {
			continue
		}
		key = strings.ToLower(key)
		if nested, err := pairs[j+1].ToArray(); err == nil {
			flattenPairs(nested, out)
			continue
		}
		if _, seen := out[key]; !seen {
			out[key] = messageString(pairs[j+1])
		}
	}
}

func fieldFromProps(props map[string]string) (db.IndexField, bool) {
	name := props["attribute"]
	if name == "" {
		name = props["identifier"]
	}
	if name == "" {
		return db.IndexField{}, false
	}

	f := db.IndexField{Name: name}
	switch strings.ToUpper(props["type"]) {
	case "NUMERIC":
		f.Type = db.IndexFieldNumeric
	case "TAG":
		f.Type = db.IndexFieldTag
	case "TEXT":
		f.Type = db.IndexFieldText
	case "VECTOR":
		f.Type = db.IndexFieldVector
		algo := props["algorithm"]
		if algo == "" {
			algo = props["name"]
		}
		f.VectorAlgo = db.VectorAlgorithm(strings.ToUpper(algo))
		f.VectorDim = firstInt(props, "dim", "dimensions")
		f.VectorDistance = db.DistanceMetric(strings.ToUpper(props["distance_metric"]))
		f.VectorM = firstInt(props, "m")
		f.VectorEFConstruct = firstInt(props, "ef_construction")
		f.VectorEFRuntime = firstInt(props, "ef_runtime")
	default:
		return db.IndexField{}, false
	}
	return f, true
}

func firstInt(props map[string]string, keys ...string) int {
	for _, k := range keys {
		if v, err := strconv.Atoi(props[k]); err == nil {
			return v
		}
	}
	return 0
}

func messageString(m rueidis.RedisMessage) string {
	if s, err := m.ToString(); err == nil {
		return s
	}
	if n, err := m.AsInt64(); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

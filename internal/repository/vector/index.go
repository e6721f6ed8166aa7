package vector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/db"
	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/episode"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/filter"
)

// Hash fields of a stored episode vector.
const (
	fieldID        = "id"
	fieldText      = "text"
	fieldEmbedding = "embedding"
)

// indexAttempt is one FT.CREATE try and its outcome.
type indexAttempt struct {
	def *db.IndexDefinition
	err error
}

func (a indexAttempt) algorithm() string {
	if v := a.def.Vector(); v != nil {
		return string(v.VectorAlgo)
	}
	return "unknown"
}

// baseIndex builds the schema without the vector field.
func (r *Repo) baseIndex(ctx context.Context) *db.IndexBuilder {
	b := db.NewIndex(r.indexName()).
		Prefix(r.keyPrefix()).
		Numeric(filter.FieldPodcastID).
		ExactTag(filter.FieldCategory, episode.TagSeparator).
		ExactTag(filter.FieldLanguage, episode.TagSeparator)
	if r.store.SupportsTextSearch(ctx) {
		b = b.Text(fieldText)
	}
	return b
}

// indexAttempts returns the HNSW definition followed by the FLAT fallback.
func (r *Repo) indexAttempts(ctx context.Context) ([]indexAttempt, error) {
	hnsw, err := r.baseIndex(ctx).
		VectorHNSW(fieldEmbedding, r.cfg.Dimensions, db.DistanceL2, r.cfg.HNSWM, r.cfg.HNSWEFConstruction).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build hnsw index: %w", err)
	}
	flat := hnsw.WithVector(db.FlatField(fieldEmbedding, r.cfg.Dimensions, db.DistanceL2))
	return []indexAttempt{{def: hnsw}, {def: flat}}, nil
}

// bootstrap makes sure the index exists and loads the search parameters in effect.
func (r *Repo) bootstrap(ctx context.Context) error {
	if r.cfg.Recreate {
		if err := r.drop(ctx); err != nil {
			return err
		}
	}

	info, err := r.store.IndexInfo(ctx, r.indexName())
	switch {
	case err == nil:
		return r.adopt(ctx, info)
	case !errors.Is(err, db.ErrIndexNotFound):
		return fmt.Errorf("read index %s: %w", r.indexName(), err)
	}

	return r.createIndex(ctx)
}

func (r *Repo) createIndex(ctx context.Context) error {
	attempts, err := r.indexAttempts(ctx)
	if err != nil {
		return err
	}

	for i := range attempts {
		a := &attempts[i]
		a.err = r.store.CreateIndex(ctx, a.def)

		switch {
		case a.err == nil:
			r.recordAttempt(a.algorithm(), "created")
			r.logger.Info("Created vector index",
				zap.String("index", a.def.Name),
				zap.String("algorithm", a.algorithm()),
				zap.Int("attempt", i+1),
			)
			r.use(a.def)
			return nil

		case errors.Is(a.err, db.ErrIndexExists):
			// created concurrently by another process
			r.recordAttempt(a.algorithm(), "exists")
			info, err := r.store.IndexInfo(ctx, r.indexName())
			if err != nil {
				return fmt.Errorf("read index %s: %w", r.indexName(), err)
			}
			return r.adopt(ctx, info)
		}

		if !errors.Is(a.err, db.ErrIndexRejected) {
			r.recordAttempt(a.algorithm(), "error")
			return fmt.Errorf("create %s index %s: %w", a.algorithm(), a.def.Name, a.err)
		}

		r.recordAttempt(a.algorithm(), "rejected")
		r.logger.Warn("Vector index rejected",
			zap.String("index", a.def.Name),
			zap.String("algorithm", a.algorithm()),
			zap.Int("attempt", i+1),
			zap.Error(a.err),
		)
	}

	errs := make([]error, 0, len(attempts)+1)
	errs = append(errs, domain.ErrBackendRejected)
	for _, a := range attempts {
		errs = append(errs, fmt.Errorf("%s: %w", a.algorithm(), a.err))
	}
	return fmt.Errorf("create index %s: %w", r.indexName(), errors.Join(errs...))
}

// adopt reuses the vector parameters of an existing index.
func (r *Repo) adopt(ctx context.Context, info *db.IndexInfo) error {
	v := info.Vector()
	if v == nil {
		return fmt.Errorf("index %s has no vector field: %w", info.Name, domain.ErrBackendRejected)
	}
	if v.VectorDim != 0 && v.VectorDim != r.cfg.Dimensions {
		return fmt.Errorf("index %s has dimension %d, configured %d: %w",
			info.Name, v.VectorDim, r.cfg.Dimensions, domain.ErrVectorDimMismatch)
	}

	field := *v
	field.Name = fieldEmbedding
	field.VectorDim = r.cfg.Dimensions
	if field.VectorDistance == "" {
		field.VectorDistance = db.DistanceL2
	}

	def, err := r.baseIndex(ctx).Build()
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	r.use(def.WithVector(field))

	r.logger.Info("Using existing vector index",
		zap.String("index", info.Name),
		zap.String("algorithm", string(field.VectorAlgo)),
		zap.Int("ef_runtime", r.efRuntime),
	)
	return nil
}

// use records the definition in effect and derives the default search parameters.
func (r *Repo) use(def *db.IndexDefinition) {
	r.def = def
	r.efRuntime = 0

	v := def.Vector()
	if v == nil || v.VectorAlgo != db.VectorHNSW {
		return
	}
	r.efRuntime = v.VectorEFRuntime
	if r.efRuntime <= 0 {
		r.efRuntime = r.cfg.EFRuntime
	}
}

// drop removes the index and every stored vector of the collection.
func (r *Repo) drop(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", r.indexName(), err)
	}

	keys, err := r.store.Scan(ctx, r.keyPrefix()+"*")
	if err != nil {
		return fmt.Errorf("scan %s: %w", r.keyPrefix(), err)
	}
	if _, err := r.deleteKeys(ctx, keys); err != nil {
		return err
	}

	r.logger.Info("Dropped vector collection",
		zap.String("index", r.indexName()),
		zap.Int("keys", len(keys)),
	)
	return nil
}

func (r *Repo) recordAttempt(algorithm, result string) {
	if r.attempts != nil {
		r.attempts.WithLabelValues(algorithm, result).Inc()
	}
}

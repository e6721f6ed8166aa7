package vector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/db"
	"github.com/becutandavid/podcasts-backend/internal/db/redis"
	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/episode"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/filter"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/request"
	"github.com/becutandavid/podcasts-backend/internal/metrics"
)

// Defaults applied by Open to zero config values.
const (
	DefaultBatchSize          = 100
	DefaultHNSWM              = 8
	DefaultHNSWEFConstruction = 64
	DefaultEFRuntime          = 10
)

// store is the consumer interface for the vector repository (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) (int, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error)
	SupportsTextSearch(ctx context.Context) bool
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config describes the collection served by a Repo.
type Config struct {
	KeyPrefix          string
	Collection         string
	Dimensions         int
	HNSWM              int
	HNSWEFConstruction int
	EFRuntime          int // used when an HNSW index reports none
	BatchSize          int
	Recreate           bool
}

// Repo stores episode vectors as hashes indexed by an FT vector index.
// It implements usecase/datastore.Backend.
type Repo struct {
	store     store
	cfg       Config
	def       *db.IndexDefinition
	efRuntime int
	newID     func() string
	logger    *zap.Logger

	inserts       *metrics.BatchObserver
	deletes       *metrics.BatchObserver
	attempts      *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// Option customizes a Repo.
type Option func(*Repo)

// WithMetrics enables Prometheus instrumentation.
func WithMetrics() Option {
	return func(r *Repo) {
		r.inserts = metrics.NewBatchObserver("insert")
		r.deletes = metrics.NewBatchObserver("delete")
		r.attempts = metrics.VectorStoreIndexAttemptsTotal
		r.queryDuration = metrics.VectorStoreQueryDuration
	}
}

// WithIDGenerator overrides the key generator used for documents without an id.
func WithIDGenerator(fn func() string) Option {
	return func(r *Repo) { r.newID = fn }
}

// Open connects the repository to its index, creating the index when it does not exist.
func Open(ctx context.Context, s store, cfg Config, logger *zap.Logger, opts ...Option) (*Repo, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.HNSWM <= 0 {
		cfg.HNSWM = DefaultHNSWM
	}
	if cfg.HNSWEFConstruction <= 0 {
		cfg.HNSWEFConstruction = DefaultHNSWEFConstruction
	}
	if cfg.EFRuntime <= 0 {
		cfg.EFRuntime = DefaultEFRuntime
	}

	r := &Repo{
		store:  s,
		cfg:    cfg,
		newID:  uuid.NewString,
		logger: logger.With(zap.String("collection", cfg.Collection)),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.bootstrap(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Algorithm returns the vector algorithm of the index in effect.
func (r *Repo) Algorithm() db.VectorAlgorithm {
	if v := r.def.Vector(); v != nil {
		return v.VectorAlgo
	}
	return ""
}

// EFRuntime returns the default HNSW search parameter, zero for FLAT indexes.
func (r *Repo) EFRuntime() int { return r.efRuntime }

// Insert stores vectors in sequential batches and returns the stored ids.
// Vectors without an id are stored under a generated one.
func (r *Repo) Insert(ctx context.Context, vectors []episode.Vector) ([]string, error) {
	for i := range vectors {
		if err := r.checkDim(vectors[i].Embedding()); err != nil {
			return []string{}, fmt.Errorf("vector %d: %w", i, err)
		}
	}

	ids := make([]string, 0, len(vectors))
	for start := 0; start < len(vectors); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(vectors))
		batch := vectors[start:end]

		items := make([]db.HashSetItem, len(batch))
		batchIDs := make([]string, len(batch))
		for i := range batch {
			id := batch[i].ID()
			if id == "" {
				id = r.newID()
			}
			batchIDs[i] = id
			items[i] = db.HashSetItem{Key: r.key(id), Fields: hashFields(id, batch[i])}
		}

		err := r.store.HSetMulti(ctx, items)
		r.inserts.Observe(len(batch), err)
		if err != nil {
			return ids, domain.NewPartialWrite("insert", len(ids), len(vectors), err)
		}
		ids = append(ids, batchIDs...)
	}

	r.logger.Debug("Inserted vectors", zap.Int("count", len(ids)))
	return ids, nil
}

// DeleteByIDs removes vectors by id in sequential batches and returns how many existed.
func (r *Repo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			keys = append(keys, r.key(id))
		}
	}
	return r.deleteKeys(ctx, keys)
}

func (r *Repo) deleteKeys(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	for start := 0; start < len(keys); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(keys))

		n, err := r.store.Del(ctx, keys[start:end]...)
		r.deletes.Observe(end-start, err)
		if err != nil {
			return deleted, domain.NewPartialWrite("delete", start, len(keys), err)
		}
		deleted += n
	}
	return deleted, nil
}

// DeleteAll drops the collection and recreates the index with the definition in effect.
func (r *Repo) DeleteAll(ctx context.Context) error {
	if err := r.drop(ctx); err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, r.def); err != nil {
		return fmt.Errorf("recreate index %s: %w", r.def.Name, err)
	}
	r.logger.Info("Recreated vector index", zap.String("algorithm", string(r.Algorithm())))
	return nil
}

// Search returns the TopK nearest vectors, ascending by L2 distance.
func (r *Repo) Search(ctx context.Context, req request.Embedded) ([]episode.Scored, error) {
	if err := r.checkDim(req.Embedding()); err != nil {
		return nil, fmt.Errorf("query %q: %w", req.Query(), err)
	}

	start := time.Now()
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:   r.indexName(),
		VectorField: fieldEmbedding,
		Filters:     req.Filters(),
		Vector:      req.Embedding(),
		K:           req.TopK(),
		EFRuntime:   r.efRuntime,
		ReturnFields: []string{
			fieldID, fieldText, fieldEmbedding,
			filter.FieldPodcastID, filter.FieldCategory, filter.FieldLanguage,
		},
	})
	r.observeQuery(start, err)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.cfg.Collection, err)
	}

	hits := make([]episode.Scored, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		hit, err := r.fromEntry(entry)
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score() < hits[j].Score() })
	return hits, nil
}

func (r *Repo) fromEntry(entry db.SearchEntry) (episode.Scored, error) {
	id := entry.Fields[fieldID]
	if id == "" {
		id = strings.TrimPrefix(entry.Key, r.keyPrefix())
	}

	var podcastID int64
	if raw := entry.Fields[filter.FieldPodcastID]; raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return episode.Scored{}, fmt.Errorf("parse podcast_id of %s: %w", entry.Key, err)
		}
		podcastID = v
	}

	var embedding []float32
	if raw, ok := entry.Fields[fieldEmbedding]; ok {
		v, err := redis.BytesToVector(raw)
		if err != nil {
			return episode.Scored{}, fmt.Errorf("decode embedding of %s: %w", entry.Key, err)
		}
		embedding = v
	}

	md := episode.RestoreMetadata(podcastID, entry.Fields[filter.FieldCategory], entry.Fields[filter.FieldLanguage])
	return episode.Reconstruct(id, md, entry.Fields[fieldText], embedding).WithScore(entry.Score), nil
}

func hashFields(id string, v episode.Vector) map[string]string {
	md := v.Metadata()
	fields := map[string]string{
		fieldID:               id,
		fieldText:             v.Text(),
		fieldEmbedding:        redis.VectorToBytes(v.Embedding()),
		filter.FieldPodcastID: strconv.FormatInt(md.PodcastID(), 10),
	}
	// empty TAG values are not indexable
	if md.Category() != "" {
		fields[filter.FieldCategory] = md.Category()
	}
	if md.Language() != "" {
		fields[filter.FieldLanguage] = md.Language()
	}
	return fields
}

func (r *Repo) checkDim(v []float32) error {
	if len(v) != r.cfg.Dimensions {
		return fmt.Errorf("got %d dimensions, want %d: %w", len(v), r.cfg.Dimensions, domain.ErrVectorDimMismatch)
	}
	return nil
}

func (r *Repo) observeQuery(start time.Time, err error) {
	if r.queryDuration == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.queryDuration.WithLabelValues("ft", status).Observe(time.Since(start).Seconds())
}

func (r *Repo) keyPrefix() string    { return r.cfg.KeyPrefix + r.cfg.Collection + ":" }
func (r *Repo) key(id string) string { return r.keyPrefix() + id }
func (r *Repo) indexName() string    { return r.cfg.KeyPrefix + r.cfg.Collection + ":idx" }

// Package memory provides an in-process vector backend with exact L2 search.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/episode"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/filter"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/request"
	"github.com/becutandavid/podcasts-backend/internal/metrics"
)

// DefaultBatchSize matches the batch accounting of the FT backend.
const DefaultBatchSize = 100

type entry struct {
	seq    uint64
	vector episode.Vector
}

// Backend keeps vectors in a map and scans all of them on every search.
// It implements usecase/datastore.Backend.
type Backend struct {
	mu      sync.RWMutex
	dim     int
	batch   int
	entries map[string]entry
	seq     uint64
	newID   func() string
	logger  *zap.Logger

	inserts *metrics.BatchObserver
	deletes *metrics.BatchObserver
}

// Option customizes a Backend.
type Option func(*Backend)

// WithBatchSize overrides the write batch size.
func WithBatchSize(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.batch = n
		}
	}
}

// WithMetrics enables Prometheus batch accounting.
func WithMetrics() Option {
	return func(b *Backend) {
		b.inserts = metrics.NewBatchObserver("insert")
		b.deletes = metrics.NewBatchObserver("delete")
	}
}

// WithIDGenerator overrides the id generator used for documents without an id.
func WithIDGenerator(fn func() string) Option {
	return func(b *Backend) { b.newID = fn }
}

// NewBackend creates an empty backend for vectors of dim dimensions.
func NewBackend(dim int, logger *zap.Logger, opts ...Option) (*Backend, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	b := &Backend{
		dim:     dim,
		batch:   DefaultBatchSize,
		entries: make(map[string]entry),
		newID:   uuid.NewString,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Len returns the number of stored vectors.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Insert stores vectors and returns their ids.
func (b *Backend) Insert(_ context.Context, vectors []episode.Vector) ([]string, error) {
	for i := range vectors {
		if err := b.checkDim(vectors[i].Embedding()); err != nil {
			return []string{}, fmt.Errorf("vector %d: %w", i, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(vectors))
	for start := 0; start < len(vectors); start += b.batch {
		end := min(start+b.batch, len(vectors))
		for _, v := range vectors[start:end] {
			id := v.ID()
			if id == "" {
				id = b.newID()
			}
			b.seq++
			b.entries[id] = entry{seq: b.seq, vector: v.WithID(id)}
			ids = append(ids, id)
		}
		b.inserts.Observe(end-start, nil)
	}
	return ids, nil
}

// DeleteByIDs removes vectors by id and returns how many existed.
func (b *Backend) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deleted := 0
	for start := 0; start < len(ids); start += b.batch {
		end := min(start+b.batch, len(ids))
		for _, id := range ids[start:end] {
			if _, ok := b.entries[id]; ok {
				delete(b.entries, id)
				deleted++
			}
		}
		b.deletes.Observe(end-start, nil)
	}
	return deleted, nil
}

// DeleteAll removes every vector.
func (b *Backend) DeleteAll(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.entries)
	b.entries = make(map[string]entry)
	b.logger.Info("Cleared in-memory vectors", zap.Int("count", n))
	return nil
}

// Search returns the TopK nearest vectors matching the filter, ascending by L2 distance.
// Equal distances keep insertion order.
func (b *Backend) Search(_ context.Context, req request.Embedded) ([]episode.Scored, error) {
	query := req.Embedding()
	if err := b.checkDim(query); err != nil {
		return nil, fmt.Errorf("query %q: %w", req.Query(), err)
	}
	expr := req.Filters()

	b.mu.RLock()
	candidates := make([]entry, 0, len(b.entries))
	for _, e := range b.entries {
		md := e.vector.Metadata()
		tags := map[string]string{
			filter.FieldCategory: md.Category(),
			filter.FieldLanguage: md.Language(),
		}
		if expr.Matches(md.PodcastID(), tags) {
			candidates = append(candidates, e)
		}
	}
	b.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })

	hits := make([]episode.Scored, len(candidates))
	for i, e := range candidates {
		hits[i] = e.vector.WithScore(l2(query, e.vector.Embedding()))
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score() < hits[j].Score() })

	if len(hits) > req.TopK() {
		hits = hits[:req.TopK()]
	}
	return hits, nil
}

func (b *Backend) checkDim(v []float32) error {
	if len(v) != b.dim {
		return fmt.Errorf("got %d dimensions, want %d: %w", len(v), b.dim, domain.ErrVectorDimMismatch)
	}
	return nil
}

// l2 is the squared Euclidean distance, as the FT index reports it for L2.
func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

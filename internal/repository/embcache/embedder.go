// Package embcache caches episode and query embeddings in a key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/db"
	"github.com/becutandavid/podcasts-backend/internal/domain"
)

// DefaultKeyPrefix namespaces cache entries in the shared key space.
const DefaultKeyPrefix = "podcasts:emb_cache:"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedEmbedder serves embeddings from a store keyed by sha256 of the text
// and calls the inner embedder for misses only.
type CachedEmbedder struct {
	inner  domain.Embedder
	store  store
	prefix string
	dim    int
	lookup *prometheus.CounterVec
	logger *zap.Logger
}

// Option customizes a CachedEmbedder.
type Option func(*CachedEmbedder)

// WithModel scopes cache keys to model.
func WithModel(model string) Option {
	return func(c *CachedEmbedder) {
		if model != "" {
			c.prefix = DefaultKeyPrefix + model + ":"
		}
	}
}

// WithDimensions treats cached vectors of any other length as misses.
func WithDimensions(dim int) Option {
	return func(c *CachedEmbedder) { c.dim = dim }
}

// WithCounter counts lookups by result label ("hit" or "miss").
func WithCounter(counter *prometheus.CounterVec) Option {
	return func(c *CachedEmbedder) { c.lookup = counter }
}

// New wraps inner with a cache backed by s.
func New(inner domain.Embedder, s store, logger *zap.Logger, opts ...Option) *CachedEmbedder {
	c := &CachedEmbedder{
		inner:  inner,
		store:  s,
		prefix: DefaultKeyPrefix,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns the cached vector with zero token usage, or embeds and stores the text.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)
	if vec, ok := c.get(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	c.put(ctx, key, res.Embedding)
	return res, nil
}

// BatchEmbed embeds the uncached texts in one inner call. Token counts cover the misses only.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	pending := make(map[string][]int)
	var misses []string

	for i, text := range texts {
		key := c.key(text)
		if vec, ok := c.get(ctx, key); ok {
			out.Embeddings[i] = vec
			continue
		}
		// duplicate texts share one provider input
		if _, seen := pending[key]; !seen {
			misses = append(misses, text)
		}
		pending[key] = append(pending[key], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	res, err := domain.EmbedAll(ctx, c.inner, misses)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d uncached texts: %w", len(misses), err)
	}

	for j, text := range misses {
		key := c.key(text)
		for _, i := range pending[key] {
			out.Embeddings[i] = res.Embeddings[j]
		}
		c.put(ctx, key, res.Embeddings[j])
	}
	out.PromptTokens = res.PromptTokens
	out.TotalTokens = res.TotalTokens
	return out, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	vec, err := c.read(ctx, key)
	switch {
	case err == nil:
		c.count("hit")
		return vec, true
	case !errors.Is(err, db.ErrKeyNotFound):
		c.logger.Warn("Ignoring cached embedding", zap.String("key", key), zap.Error(err))
	}
	c.count("miss")
	return nil, false
}

func (c *CachedEmbedder) read(ctx context.Context, key string) ([]float32, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, db.ErrKeyNotFound
	}
	vec, err := db.DecodeVector(data)
	if err != nil {
		return nil, err
	}
	if c.dim > 0 && len(vec) != c.dim {
		return nil, fmt.Errorf("cached %d dimensions, want %d: %w", len(vec), c.dim, domain.ErrVectorDimMismatch)
	}
	return vec, nil
}

func (c *CachedEmbedder) put(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, db.EncodeVector(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) count(result string) {
	if c.lookup != nil {
		c.lookup.WithLabelValues(result).Inc()
	}
}

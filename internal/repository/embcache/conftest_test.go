package embcache

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/db"
	"github.com/becutandavid/podcasts-backend/internal/domain"
)

// stubEmbedder answers every text with vector and records the texts it was asked for.
type stubEmbedder struct {
	vector   []float32
	tokens   int
	err      error
	short    bool // return one vector less than requested
	requests [][]string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	s.requests = append(s.requests, []string{text})
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: s.vector, PromptTokens: s.tokens, TotalTokens: s.tokens}, nil
}

func (s *stubEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	s.requests = append(s.requests, texts)
	if s.err != nil {
		return domain.BatchEmbeddingResult{}, s.err
	}
	n := len(texts)
	if s.short {
		n--
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, n)}
	for i := range out.Embeddings {
		out.Embeddings[i] = s.vector
	}
	out.PromptTokens = s.tokens * n
	out.TotalTokens = s.tokens * n
	return out, nil
}

// mapStore is an in-memory store that can fail reads and writes.
type mapStore struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	lastGet string
	sets    int
}

func newMapStore() *mapStore { return &mapStore{data: make(map[string][]byte)} }

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	m.lastGet = key
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte) error {
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func newTestCache(t *testing.T, inner *stubEmbedder, opts ...Option) (*CachedEmbedder, *mapStore) {
	t.Helper()
	s := newMapStore()
	return New(inner, s, zap.NewNop(), opts...), s
}

// seed stores vec under the key the cache would use for text.
func seed(c *CachedEmbedder, s *mapStore, text string, vec []float32) {
	s.data[c.key(text)] = db.EncodeVector(vec)
}

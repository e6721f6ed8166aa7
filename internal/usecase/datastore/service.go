package datastore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/episode"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/request"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/result"
	"github.com/becutandavid/podcasts-backend/internal/usecase/search"
)

var _ VectorStore = (*Service)(nil)

// Service implements VectorStore over any Backend.
type Service struct {
	backend Backend
	embed   domain.Embedder
	search  *search.Orchestrator
	logger  *zap.Logger
}

// New creates a datastore service.
func New(backend Backend, embed domain.Embedder, logger *zap.Logger) *Service {
	return &Service{
		backend: backend,
		embed:   embed,
		search:  search.New(backend, embed, logger),
		logger:  logger,
	}
}

// Upsert deletes the previous vectors of the documents, embeds all texts in one
// batch and inserts the new vectors. Documents without an id are only inserted.
func (s *Service) Upsert(ctx context.Context, docs []episode.Document, replaceAll bool) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}

	if replaceAll {
		if err := s.backend.DeleteAll(ctx); err != nil {
			return nil, fmt.Errorf("delete all: %w", err)
		}
	} else if ids := existingIDs(docs); len(ids) > 0 {
		if _, err := s.backend.DeleteByIDs(ctx, ids); err != nil {
			return nil, fmt.Errorf("delete previous vectors: %w", err)
		}
	}

	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].Text()
	}
	emb, err := domain.EmbedAll(ctx, s.embed, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}

	vectors := make([]episode.Vector, len(docs))
	for i := range docs {
		vectors[i] = docs[i].WithEmbedding(emb.Embeddings[i])
	}

	ids, err := s.backend.Insert(ctx, vectors)
	if err != nil {
		return ids, fmt.Errorf("insert vectors: %w", err)
	}

	s.logger.Info("Upserted episodes",
		zap.Int("documents", len(docs)),
		zap.Bool("replace_all", replaceAll),
		zap.Int("tokens", emb.TotalTokens),
	)
	return ids, nil
}

// Query answers every request, one result per request in input order.
func (s *Service) Query(ctx context.Context, reqs []request.Request) ([]result.Query, error) {
	return s.search.Run(ctx, reqs)
}

// Delete removes vectors by id, or the whole collection when deleteAll is set.
// It returns the number of vectors removed by id; deleteAll reports 0.
func (s *Service) Delete(ctx context.Context, ids []string, deleteAll bool) (int, error) {
	if deleteAll {
		if err := s.backend.DeleteAll(ctx); err != nil {
			return 0, fmt.Errorf("delete all: %w", err)
		}
		s.logger.Info("Deleted all episode vectors")
		return 0, nil
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := s.backend.DeleteByIDs(ctx, ids)
	if err != nil {
		return n, fmt.Errorf("delete vectors: %w", err)
	}
	s.logger.Info("Deleted episode vectors", zap.Int("requested", len(ids)), zap.Int("deleted", n))
	return n, nil
}

// existingIDs returns the distinct non-empty ids in input order.
func existingIDs(docs []episode.Document) []string {
	seen := make(map[string]struct{}, len(docs))
	ids := make([]string, 0, len(docs))
	for i := range docs {
		id := docs[i].ID()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

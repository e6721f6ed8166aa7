package indexing

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/episode"
	"github.com/becutandavid/podcasts-backend/internal/domain/podcast"
)

// Service turns catalog episodes into vector store documents.
type Service struct {
	podcasts PodcastReader
	store    Upserter
	logger   *zap.Logger
}

// New creates an indexing service.
func New(podcasts PodcastReader, store Upserter, logger *zap.Logger) *Service {
	return &Service{podcasts: podcasts, store: store, logger: logger}
}

// AddEpisode indexes one episode. Its podcast must exist.
func (s *Service) AddEpisode(ctx context.Context, ep podcast.Episode) (string, error) {
	ids, err := s.add(ctx, []podcast.Episode{ep}, false)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddEpisodes indexes episodes with a single upsert. Every podcast is resolved
// before anything is written.
func (s *Service) AddEpisodes(ctx context.Context, eps []podcast.Episode) ([]string, error) {
	return s.add(ctx, eps, false)
}

// Reindex replaces the whole collection with eps.
func (s *Service) Reindex(ctx context.Context, eps []podcast.Episode) ([]string, error) {
	return s.add(ctx, eps, true)
}

func (s *Service) add(ctx context.Context, eps []podcast.Episode, replaceAll bool) ([]string, error) {
	if len(eps) == 0 {
		return []string{}, nil
	}

	docs, err := s.documents(ctx, eps)
	if err != nil {
		return nil, err
	}

	ids, err := s.store.Upsert(ctx, docs, replaceAll)
	if err != nil {
		return ids, fmt.Errorf("upsert episodes: %w", err)
	}
	if err := checkIDs(docs, ids); err != nil {
		return ids, err
	}

	s.logger.Info("Indexed episodes", zap.Int("count", len(ids)), zap.Bool("replace_all", replaceAll))
	return ids, nil
}

func (s *Service) documents(ctx context.Context, eps []podcast.Episode) ([]episode.Document, error) {
	cache := make(map[int64]podcast.Podcast)
	docs := make([]episode.Document, len(eps))

	for i, ep := range eps {
		if ep.ID <= 0 {
			return nil, domain.Validationf("episode_id must be positive")
		}

		p, ok := cache[ep.PodcastID]
		if !ok {
			var err error
			p, err = s.podcasts.Podcast(ctx, ep.PodcastID)
			if err != nil {
				return nil, fmt.Errorf("episode %d: %w", ep.ID, err)
			}
			cache[ep.PodcastID] = p
		}

		doc, err := Document(p, ep)
		if err != nil {
			return nil, fmt.Errorf("episode %d: %w", ep.ID, err)
		}
		docs[i] = doc
	}
	return docs, nil
}

// Document builds the vector store document of an episode of p.
func Document(p podcast.Podcast, ep podcast.Episode) (episode.Document, error) {
	md, err := episode.NewMetadata(ep.PodcastID, p.PrimaryCategory(), p.Language)
	if err != nil {
		return episode.Document{}, err
	}
	return episode.NewDocument(episode.IDFromInt(ep.ID), md, EmbeddingText(p, ep))
}

// EmbeddingText is "<title> <description>" of the episode, or of the podcast
// when the episode has neither.
func EmbeddingText(p podcast.Podcast, ep podcast.Episode) string {
	if ep.Title == "" && ep.Description == "" {
		return strings.TrimSpace(p.Title + " " + p.Description)
	}
	return strings.TrimSpace(ep.Title + " " + ep.Description)
}

// checkIDs requires the store to report exactly the ids that were sent.
func checkIDs(docs []episode.Document, ids []string) error {
	if len(ids) != len(docs) {
		return domain.NewPartialWrite("index", len(ids), len(docs),
			fmt.Errorf("store returned %d ids for %d episodes", len(ids), len(docs)))
	}
	for i := range docs {
		if ids[i] != docs[i].ID() {
			return domain.NewPartialWrite("index", i, len(docs),
				fmt.Errorf("store returned id %q for episode %q", ids[i], docs[i].ID()))
		}
	}
	return nil
}

package indexing

import (
	"context"

	"github.com/becutandavid/podcasts-backend/internal/domain/episode"
	"github.com/becutandavid/podcasts-backend/internal/domain/podcast"
)

// PodcastReader looks up the podcast an episode belongs to.
type PodcastReader interface {
	Podcast(ctx context.Context, id int64) (podcast.Podcast, error)
}

// Upserter writes episode documents to the vector store.
type Upserter interface {
	Upsert(ctx context.Context, docs []episode.Document, replaceAll bool) ([]string, error)
}

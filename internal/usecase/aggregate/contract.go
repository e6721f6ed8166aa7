package aggregate

import (
	"context"

	"github.com/becutandavid/podcasts-backend/internal/domain/podcast"
)

// Catalog resolves search hits to their catalog records.
type Catalog interface {
	PodcastFromEpisode(ctx context.Context, episodeID int64) (podcast.Podcast, error)
	Episode(ctx context.Context, id int64) (podcast.Episode, error)
}

package search

import (
	"context"

	"github.com/becutandavid/podcasts-backend/internal/domain/episode"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/request"
)

// Searcher runs one embedded request against the vector backend.
type Searcher interface {
	Search(ctx context.Context, req request.Embedded) ([]episode.Scored, error)
}

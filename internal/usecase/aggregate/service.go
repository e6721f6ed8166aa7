package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/podcast"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/result"
)

// Service groups search hits by podcast.
type Service struct {
	catalog Catalog
}

// New creates an aggregation service.
func New(catalog Catalog) *Service {
	return &Service{catalog: catalog}
}

// Aggregate resolves every hit of q and groups them by podcast.
// Groups are ordered by their best (lowest) score and episodes by score,
// both keeping arrival order on ties. Any unresolvable hit fails the query.
func (s *Service) Aggregate(ctx context.Context, q result.Query) ([]*podcast.Group, error) {
	groups := make([]*podcast.Group, 0)
	byPodcast := make(map[int64]*podcast.Group)

	for _, hit := range q.Results() {
		id, err := strconv.ParseInt(hit.ID(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("hit %q is not an episode id: %w", hit.ID(), domain.ErrNotFound)
		}

		p, err := s.catalog.PodcastFromEpisode(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve podcast of episode %d: %w", id, err)
		}
		ep, err := s.catalog.Episode(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve episode %d: %w", id, err)
		}

		ranked := podcast.RankedEpisode{Episode: ep, Score: hit.Score()}
		if g, ok := byPodcast[p.ID]; ok {
			g.Add(ranked)
			continue
		}
		g := podcast.NewGroup(p, ranked)
		byPodcast[p.ID] = g
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].BestScore() < groups[j].BestScore()
	})
	for _, g := range groups {
		g.SortEpisodes()
	}
	return groups, nil
}

// AggregateAll aggregates every query result, stopping at the first error.
func (s *Service) AggregateAll(ctx context.Context, qs []result.Query) ([][]*podcast.Group, error) {
	out := make([][]*podcast.Group, len(qs))
	for i := range qs {
		groups, err := s.Aggregate(ctx, qs[i])
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", qs[i].Query(), err)
		}
		out[i] = groups
	}
	return out, nil
}

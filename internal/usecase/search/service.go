package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/request"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/result"
)

// Orchestrator embeds a batch of queries once and runs them against the backend.
type Orchestrator struct {
	searcher Searcher
	embed    domain.Embedder
	logger   *zap.Logger
}

// New creates an orchestrator.
func New(searcher Searcher, embed domain.Embedder, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{searcher: searcher, embed: embed, logger: logger}
}

// Run answers every request, returning one result per request in input order.
// All requests are validated before the embedding call, and every query text
// is embedded in a single batch.
func (o *Orchestrator) Run(ctx context.Context, reqs []request.Request) ([]result.Query, error) {
	if len(reqs) == 0 {
		return []result.Query{}, nil
	}
	for i := range reqs {
		if err := validate(reqs[i]); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}

	texts := make([]string, len(reqs))
	for i := range reqs {
		texts[i] = reqs[i].Query()
	}

	start := time.Now()
	emb, err := domain.EmbedAll(ctx, o.embed, texts)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}

	out := make([]result.Query, len(reqs))
	for i := range reqs {
		hits, err := o.searcher.Search(ctx, reqs[i].WithEmbedding(emb.Embeddings[i]))
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", reqs[i].Query(), err)
		}
		out[i] = result.New(reqs[i].Query(), hits)
	}

	o.logger.Debug("Queries answered",
		zap.Int("queries", len(reqs)),
		zap.Int("tokens", emb.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// validate catches zero-value requests built without request.New.
func validate(r request.Request) error {
	if r.Query() == "" {
		return domain.Validationf("query is required")
	}
	if r.TopK() <= 0 || r.TopK() > request.MaxTopK {
		return domain.Validationf("top_k must be between 1 and %d", request.MaxTopK)
	}
	return nil
}

package result

import "github.com/becutandavid/podcasts-backend/internal/domain/episode"

// Query is the answer to one request: its text and the hits ordered by ascending score.
type Query struct {
	query   string
	results []episode.Scored
}

// New creates a query result. A nil hit list is normalized to empty.
func New(query string, results []episode.Scored) Query {
	if results == nil {
		results = []episode.Scored{}
	}
	return Query{query: query, results: results}
}

// Query returns the original query text.
func (q Query) Query() string { return q.query }

// Results returns the scored hits.
func (q Query) Results() []episode.Scored { return q.results }

// IsEmpty reports whether the query had no hits.
func (q Query) IsEmpty() bool { return len(q.results) == 0 }

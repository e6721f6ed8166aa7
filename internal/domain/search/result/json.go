package result

import (
	"encoding/json"

	"github.com/becutandavid/podcasts-backend/internal/domain/episode"
)

type queryJSON struct {
	Query   string           `json:"query"`
	Results []episode.Scored `json:"results"`
}

// MarshalJSON renders the result as {query, results}. Results is never null.
func (q Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(queryJSON{Query: q.query, Results: New(q.query, q.results).results})
}

// UnmarshalJSON restores a result, normalizing missing results to empty.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw queryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = New(raw.Query, raw.Results)
	return nil
}

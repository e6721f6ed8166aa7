package request

import (
	"encoding/json"
	"fmt"

	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/filter"
)

type requestJSON struct {
	Query  string          `json:"query"`
	Filter *filter.Episode `json:"filter,omitempty"`
	TopK   int             `json:"top_k"`
}

// MarshalJSON renders the request as {query, filter, top_k}.
func (r Request) MarshalJSON() ([]byte, error) {
	raw := requestJSON{Query: r.query, TopK: r.topK}
	if !r.filter.Compile().IsEmpty() {
		f := r.filter
		raw.Filter = &f
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes {query, filter?, top_k?} and validates it like New.
// A missing top_k means DefaultTopK.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode query request: %w: %w", domain.ErrValidation, err)
	}
	var f filter.Episode
	if raw.Filter != nil {
		f = *raw.Filter
	}
	req, err := New(raw.Query, f, raw.TopK)
	if err != nil {
		return err
	}
	*r = req
	return nil
}

// Decode parses a JSON list of query requests.
func Decode(data []byte) ([]Request, error) {
	var reqs []Request
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

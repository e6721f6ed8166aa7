package db

import "github.com/becutandavid/podcasts-backend/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
// Scores are returned as the raw distance reported by the index.
type KNNQuery struct {
	IndexName    string
	VectorField  string
	Filters      filter.Expression
	Vector       []float32
	K            int
	EFRuntime    int // HNSW only; zero leaves the index default
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

package request

import (
	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in bytes.
	MaxQueryLength = 4096
	DefaultTopK    = 20
	MaxTopK        = 1000
)

// Request is a validated semantic query.
type Request struct {
	query  string
	filter filter.Episode
	topK   int
}

// New validates and normalizes a query. A zero topK means DefaultTopK.
func New(query string, f filter.Episode, topK int) (Request, error) {
	if query == "" {
		return Request{}, domain.Validationf("query is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, domain.Validationf("query too long (max %d bytes)", MaxQueryLength)
	}
	if topK < 0 {
		return Request{}, domain.Validationf("top_k must be positive")
	}
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		return Request{}, domain.Validationf("top_k too large (max %d)", MaxTopK)
	}
	return Request{query: query, filter: f, topK: topK}, nil
}

// Query returns the query text.
func (r Request) Query() string { return r.query }

// Filter returns the raw metadata filter.
func (r Request) Filter() filter.Episode { return r.filter }

// Filters returns the compiled pre-filter expression.
func (r Request) Filters() filter.Expression { return r.filter.Compile() }

// TopK returns the number of nearest neighbours to retrieve.
func (r Request) TopK() int { return r.topK }

// WithEmbedding attaches the query embedding.
func (r Request) WithEmbedding(embedding []float32) Embedded {
	return Embedded{Request: r, embedding: embedding}
}

// Embedded is a Request hydrated with its query embedding.
type Embedded struct {
	Request
	embedding []float32
}

// Embedding returns the query vector.
func (e Embedded) Embedding() []float32 { return e.embedding }

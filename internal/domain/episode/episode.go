package episode

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/becutandavid/podcasts-backend/internal/domain"
)

// Field bounds shared by every backend schema.
const (
	MaxTextSize  = 10000
	MaxIDLength  = 256
	MaxLabelSize = 100
)

// TagSeparator splits multi-value tag fields in the FT index. Labels must not contain it.
const TagSeparator = "|"

// Metadata is the filterable part of an indexed episode.
type Metadata struct {
	podcastID int64
	category  string
	language  string
}

// NewMetadata validates and creates Metadata. Category and language are optional.
func NewMetadata(podcastID int64, category, language string) (Metadata, error) {
	if len(category) > MaxLabelSize {
		return Metadata{}, domain.Validationf("category too long (max %d bytes)", MaxLabelSize)
	}
	if len(language) > MaxLabelSize {
		return Metadata{}, domain.Validationf("language too long (max %d bytes)", MaxLabelSize)
	}
	if strings.Contains(category, TagSeparator) || strings.Contains(language, TagSeparator) {
		return Metadata{}, domain.Validationf("category and language must not contain %q", TagSeparator)
	}
	return Metadata{podcastID: podcastID, category: category, language: language}, nil
}

// RestoreMetadata creates Metadata without validation (storage hydration).
func RestoreMetadata(podcastID int64, category, language string) Metadata {
	return Metadata{podcastID: podcastID, category: category, language: language}
}

// PodcastID returns the owning podcast identifier.
func (m Metadata) PodcastID() int64 { return m.podcastID }

// Category returns the podcast category, empty when unknown.
func (m Metadata) Category() string { return m.category }

// Language returns the podcast language, empty when unknown.
func (m Metadata) Language() string { return m.language }

// Document is an episode text ready to be embedded.
type Document struct {
	id       string
	metadata Metadata
	text     string
}

// NewDocument validates and creates a Document.
// An empty id is allowed: the document is stored under a generated key and never pre-deleted.
func NewDocument(id string, metadata Metadata, text string) (Document, error) {
	if len(id) > MaxIDLength {
		return Document{}, domain.Validationf("episode ID too long (max %d)", MaxIDLength)
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return Document{}, domain.Validationf("episode ID %q must not contain whitespace", id)
	}
	if text == "" {
		return Document{}, domain.Validationf("text is required")
	}
	if len(text) > MaxTextSize {
		return Document{}, domain.Validationf("text too large (max %d bytes)", MaxTextSize)
	}
	return Document{id: id, metadata: metadata, text: text}, nil
}

// IDFromInt formats an integer episode identifier.
func IDFromInt(id int64) string { return strconv.FormatInt(id, 10) }

// ID returns the document identifier, possibly empty.
func (d Document) ID() string { return d.id }

// Metadata returns the filterable metadata.
func (d Document) Metadata() Metadata { return d.metadata }

// Text returns the embedded source text.
func (d Document) Text() string { return d.text }

// WithEmbedding attaches an embedding and returns the resulting Vector.
func (d Document) WithEmbedding(embedding []float32) Vector {
	return Vector{Document: d, embedding: embedding}
}

// Vector is a Document with its embedding.
type Vector struct {
	Document
	embedding []float32
}

// Reconstruct creates a Vector without validation (storage hydration).
func Reconstruct(id string, metadata Metadata, text string, embedding []float32) Vector {
	return Vector{Document: Document{id: id, metadata: metadata, text: text}, embedding: embedding}
}

// Embedding returns the vector.
func (v Vector) Embedding() []float32 { return v.embedding }

// WithID returns a copy stored under id.
func (v Vector) WithID(id string) Vector {
	v.id = id
	return v
}

// WithScore attaches a distance score. Only backend search produces Scored values.
func (v Vector) WithScore(score float64) Scored {
	return Scored{Vector: v, score: score}
}

// Scored is a search hit: lower score means more similar (L2 distance).
type Scored struct {
	Vector
	score float64
}

// Score returns the distance to the query embedding.
func (s Scored) Score() float64 { return s.score }

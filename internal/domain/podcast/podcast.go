package podcast

import (
	"time"

	"github.com/becutandavid/podcasts-backend/internal/domain"
)

// Podcast is the catalog record of a show.
type Podcast struct {
	ID            int64     `json:"podcast_id" yaml:"podcast_id"`
	Title         string    `json:"title" yaml:"title"`
	Author        string    `json:"author,omitempty" yaml:"author"`
	Categories    []string  `json:"categories,omitempty" yaml:"categories"`
	Description   string    `json:"description,omitempty" yaml:"description"`
	Summary       string    `json:"summary,omitempty" yaml:"summary"`
	Explicit      bool      `json:"explicit,omitempty" yaml:"explicit"`
	ImageURL      string    `json:"image_url,omitempty" yaml:"image_url"`
	Language      string    `json:"language,omitempty" yaml:"language"`
	Link          string    `json:"link,omitempty" yaml:"link"`
	OwnerName     string    `json:"owner_name,omitempty" yaml:"owner_name"`
	OwnerEmail    string    `json:"owner_email,omitempty" yaml:"owner_email"`
	LastBuildDate time.Time `json:"last_build_date,omitempty" yaml:"last_build_date"`
}

// Validate checks the fields the catalog depends on.
func (p Podcast) Validate() error {
	if p.ID <= 0 {
		return domain.Validationf("podcast_id must be positive")
	}
	if p.Title == "" {
		return domain.Validationf("podcast %d: title is required", p.ID)
	}
	return nil
}

// PrimaryCategory returns the first category, or empty when none is set.
func (p Podcast) PrimaryCategory() string {
	if len(p.Categories) == 0 {
		return ""
	}
	return p.Categories[0]
}

// Episode is the catalog record of a single episode.
type Episode struct {
	ID          int64     `json:"episode_id" yaml:"episode_id"`
	PodcastID   int64     `json:"podcast_id" yaml:"podcast_id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Summary     string    `json:"summary,omitempty" yaml:"summary"`
	Enclosure   string    `json:"enclosure" yaml:"enclosure"`
	GUID        string    `json:"guid,omitempty" yaml:"guid"`
	Keywords    string    `json:"keywords,omitempty" yaml:"keywords"`
	Link        string    `json:"link,omitempty" yaml:"link"`
	Duration    int       `json:"duration,omitempty" yaml:"duration"`
	PublishedAt time.Time `json:"pub_date,omitempty" yaml:"pub_date"`
}

// Validate checks the fields the catalog depends on.
func (e Episode) Validate() error {
	if e.ID <= 0 {
		return domain.Validationf("episode_id must be positive")
	}
	if e.PodcastID <= 0 {
		return domain.Validationf("episode %d: podcast_id must be positive", e.ID)
	}
	if e.Title == "" {
		return domain.Validationf("episode %d: title is required", e.ID)
	}
	return nil
}

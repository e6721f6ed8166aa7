package episode

import "encoding/json"

type metadataJSON struct {
	PodcastID int64  `json:"podcast_id"`
	Category  string `json:"category"`
	Language  string `json:"language"`
}

type scoredJSON struct {
	ID        string       `json:"id"`
	Metadata  metadataJSON `json:"metadata"`
	Text      string       `json:"text"`
	Embedding []float32    `json:"embedding"`
	Score     float64      `json:"score"`
}

// MarshalJSON renders metadata as {podcast_id, category, language}.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(metadataJSON{m.podcastID, m.category, m.language})
}

// UnmarshalJSON restores metadata without validation.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw metadataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = RestoreMetadata(raw.PodcastID, raw.Category, raw.Language)
	return nil
}

// MarshalJSON renders a hit as {id, metadata, text, embedding, score}.
func (s Scored) MarshalJSON() ([]byte, error) {
	md := s.Metadata()
	return json.Marshal(scoredJSON{
		ID:        s.ID(),
		Metadata:  metadataJSON{md.podcastID, md.category, md.language},
		Text:      s.Text(),
		Embedding: s.Embedding(),
		Score:     s.score,
	})
}

// UnmarshalJSON restores a hit without validation.
func (s *Scored) UnmarshalJSON(data []byte) error {
	var raw scoredJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	md := RestoreMetadata(raw.Metadata.PodcastID, raw.Metadata.Category, raw.Metadata.Language)
	*s = Reconstruct(raw.ID, md, raw.Text, raw.Embedding).WithScore(raw.Score)
	return nil
}

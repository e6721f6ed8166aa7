package podcast

import (
	"encoding/json"
	"sort"
)

// RankedEpisode is a catalog episode with the distance of its search hit.
type RankedEpisode struct {
	Episode Episode `json:"episode"`
	Score   float64 `json:"score"`
}

// Group collects the hits of one podcast for a single query.
// A Group is never empty and every episode belongs to Podcast.
type Group struct {
	podcast   Podcast
	episodes  []RankedEpisode
	bestScore float64
}

// NewGroup starts a group from its first hit.
func NewGroup(p Podcast, first RankedEpisode) *Group {
	return &Group{podcast: p, episodes: []RankedEpisode{first}, bestScore: first.Score}
}

// Add appends a hit and keeps the minimum score as the group's representative.
func (g *Group) Add(e RankedEpisode) {
	g.episodes = append(g.episodes, e)
	if e.Score < g.bestScore {
		g.bestScore = e.Score
	}
}

// SortEpisodes orders episodes by ascending score, keeping arrival order on ties.
func (g *Group) SortEpisodes() {
	sort.SliceStable(g.episodes, func(i, j int) bool {
		return g.episodes[i].Score < g.episodes[j].Score
	})
}

// Podcast returns the podcast record.
func (g *Group) Podcast() Podcast { return g.podcast }

// Episodes returns the relevant episodes.
func (g *Group) Episodes() []RankedEpisode { return g.episodes }

// BestScore returns the lowest episode score in the group.
func (g *Group) BestScore() float64 { return g.bestScore }

// MarshalJSON renders the group for API and CLI output.
func (g *Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Podcast          Podcast         `json:"podcast"`
		BestScore        float64         `json:"best_score"`
		RelevantEpisodes []RankedEpisode `json:"relevant_episodes"`
	}{g.podcast, g.bestScore, g.episodes})
}

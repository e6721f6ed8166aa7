package podcast

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/becutandavid/podcasts-backend/internal/domain"
)

func TestGroup_TracksBestScore(t *testing.T) {
	g := NewGroup(Podcast{ID: 1}, RankedEpisode{Episode: Episode{ID: 10}, Score: 0.9})
	g.Add(RankedEpisode{Episode: Episode{ID: 11}, Score: 0.5})
	g.Add(RankedEpisode{Episode: Episode{ID: 12}, Score: 0.7})

	if g.BestScore() != 0.5 {
		t.Errorf("BestScore() = %f, want 0.5", g.BestScore())
	}
	g.SortEpisodes()
	got := []int64{g.Episodes()[0].Episode.ID, g.Episodes()[1].Episode.ID, g.Episodes()[2].Episode.ID}
	want := []int64{11, 12, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("episode order = %v, want %v", got, want)
		}
	}
}

func TestGroup_SortIsStable(t *testing.T) {
	g := NewGroup(Podcast{ID: 1}, RankedEpisode{Episode: Episode{ID: 1}, Score: 0.3})
	g.Add(RankedEpisode{Episode: Episode{ID: 2}, Score: 0.3})
	g.Add(RankedEpisode{Episode: Episode{ID: 3}, Score: 0.1})
	g.SortEpisodes()

	eps := g.Episodes()
	if eps[0].Episode.ID != 3 || eps[1].Episode.ID != 1 || eps[2].Episode.ID != 2 {
		t.Errorf("unexpected order: %+v", eps)
	}
}

func TestPodcast_PrimaryCategory(t *testing.T) {
	if got := (Podcast{}).PrimaryCategory(); got != "" {
		t.Errorf("PrimaryCategory() = %q", got)
	}
	if got := (Podcast{Categories: []string{"News", "Politics"}}).PrimaryCategory(); got != "News" {
		t.Errorf("PrimaryCategory() = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"podcast without id", Podcast{Title: "x"}.Validate()},
		{"podcast without title", Podcast{ID: 1}.Validate()},
		{"episode without id", Episode{PodcastID: 1, Title: "x"}.Validate()},
		{"episode without podcast", Episode{ID: 1, Title: "x"}.Validate()},
		{"episode without title", Episode{ID: 1, PodcastID: 1}.Validate()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", tt.err)
			}
		})
	}

	if err := (Podcast{ID: 1, Title: "ok"}).Validate(); err != nil {
		t.Errorf("valid podcast: %v", err)
	}
	if err := (Episode{ID: 1, PodcastID: 1, Title: "ok"}).Validate(); err != nil {
		t.Errorf("valid episode: %v", err)
	}
}

func TestGroup_MarshalJSON(t *testing.T) {
	g := NewGroup(Podcast{ID: 3, Title: "Show"}, RankedEpisode{Episode: Episode{ID: 30, PodcastID: 3}, Score: 0.25})

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"best_score":0.25`, `"podcast_id":3`, `"episode_id":30`, `"relevant_episodes":[`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}
}

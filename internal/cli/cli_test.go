package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/config"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/filter"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/request"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/result"
	"github.com/becutandavid/podcasts-backend/internal/usecase/health"
)

const catalogYAML = `
podcasts:
  - podcast_id: 1
    title: Jazz Hour
    categories: [Music]
    language: en
  - podcast_id: 2
    title: Daily News
    categories: [News]
    language: de
episodes:
  - episode_id: 10
    podcast_id: 1
    title: Coltrane
    description: jazz saxophone
  - episode_id: 11
    podcast_id: 1
    title: Monk
    description: jazz piano
  - episode_id: 20
    podcast_id: 2
    title: Election
    description: news from the capital
`

// keywordServer embeds texts as [count("jazz"), count("news"), 0, 1].
func keywordServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/models" {
			_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, text := range req.Input {
			text = strings.ToLower(text)
			data[i] = item{Index: i, Embedding: []float32{
				float32(strings.Count(text, "jazz")),
				float32(strings.Count(text, "news")),
				0, 1,
			}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCatalog(t *testing.T, dir string) {
	t.Helper()
	sub := filepath.Join(dir, "catalog", "2024")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "shows.yaml"), []byte(catalogYAML), 0o600); err != nil {
		t.Fatal(err)
	}
}

func memoryConfig(t *testing.T, dir, embeddingURL string) config.Config {
	t.Helper()
	cfg := config.Config{
		Database:   config.DatabaseConfig{Driver: config.DriverMemory},
		Collection: config.CollectionConfig{Dimensions: 4},
		Index:      config.IndexConfig{BatchSize: 2},
		Embedding:  config.EmbeddingConfig{BaseURL: embeddingURL, Cache: true},
		Catalog:    config.CatalogConfig{Path: filepath.Join(dir, "catalog.db")},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	writeCatalog(t, dir)

	app, err := NewApp(context.Background(), memoryConfig(t, dir, keywordServer(t).URL), zap.NewNop())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(app.Close)
	return app, dir
}

type printedQuery struct {
	Query    string `json:"query"`
	Podcasts []struct {
		Podcast struct {
			ID int64 `json:"podcast_id"`
		} `json:"podcast"`
		BestScore float64 `json:"best_score"`
		Episodes  []struct {
			Episode struct {
				ID int64 `json:"episode_id"`
			} `json:"episode"`
		} `json:"relevant_episodes"`
	} `json:"podcasts"`
}

func query(t *testing.T, app *App, text string, f filter.Episode) []printedQuery {
	t.Helper()
	req, err := request.New(text, f, 0)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runQuery(context.Background(), app, []request.Request{req}, false, &out); err != nil {
		t.Fatalf("runQuery: %v", err)
	}

	var printed []printedQuery
	if err := json.Unmarshal(out.Bytes(), &printed); err != nil {
		t.Fatalf("decode output %s: %v", out.String(), err)
	}
	return printed
}

func TestIndexAndQuery_MemoryBackend(t *testing.T) {
	app, dir := newTestApp(t)
	ctx := context.Background()

	var out bytes.Buffer
	if err := runIndex(ctx, app, []string{filepath.Join(dir, "catalog", "**", "*.yaml")}, false, &out, nil); err != nil {
		t.Fatalf("runIndex: %v", err)
	}
	if !strings.Contains(out.String(), "Indexed 3 episodes from 1 files.") {
		t.Errorf("unexpected index output %q", out.String())
	}

	printed := query(t, app, "jazz", filter.Episode{})
	if len(printed) != 1 || printed[0].Query != "jazz" {
		t.Fatalf("unexpected output %+v", printed)
	}
	groups := printed[0].Podcasts
	if len(groups) != 2 || groups[0].Podcast.ID != 1 || groups[1].Podcast.ID != 2 {
		t.Fatalf("expected Jazz Hour before Daily News, got %+v", groups)
	}
	if len(groups[0].Episodes) != 2 || groups[0].BestScore != 0 {
		t.Errorf("unexpected jazz group %+v", groups[0])
	}

	lang := "de"
	printed = query(t, app, "jazz", filter.Episode{Language: &lang})
	if len(printed[0].Podcasts) != 1 || printed[0].Podcasts[0].Podcast.ID != 2 {
		t.Errorf("expected only the German podcast, got %+v", printed[0].Podcasts)
	}
}

func TestIndex_Replace(t *testing.T) {
	app, dir := newTestApp(t)
	ctx := context.Background()
	pattern := filepath.Join(dir, "catalog", "**", "*.yaml")

	for i := 0; i < 2; i++ {
		if err := runIndex(ctx, app, []string{pattern}, true, &bytes.Buffer{}, nil); err != nil {
			t.Fatalf("runIndex: %v", err)
		}
	}

	printed := query(t, app, "news", filter.Episode{})
	total := 0
	for _, g := range printed[0].Podcasts {
		total += len(g.Episodes)
	}
	if total != 3 {
		t.Errorf("expected 3 episodes after replacing twice, got %d", total)
	}
}

func TestReindexCatalog(t *testing.T) {
	app, dir := newTestApp(t)
	ctx := context.Background()

	if err := runIndex(ctx, app, []string{filepath.Join(dir, "catalog", "**", "*.yaml")}, false, &bytes.Buffer{}, nil); err != nil {
		t.Fatalf("runIndex: %v", err)
	}
	if _, err := app.datastore.Delete(ctx, nil, true); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var out bytes.Buffer
	if err := runReindexCatalog(ctx, app, true, &out, nil); err != nil {
		t.Fatalf("runReindexCatalog: %v", err)
	}
	if strings.TrimSpace(out.String()) != "Indexed 3 episodes from the catalog." {
		t.Errorf("unexpected output %q", out.String())
	}

	total := 0
	for _, g := range query(t, app, "jazz", filter.Episode{})[0].Podcasts {
		total += len(g.Episodes)
	}
	if total != 3 {
		t.Errorf("expected every catalog episode indexed again, got %d", total)
	}
}

func TestIndex_NoMatches(t *testing.T) {
	app, dir := newTestApp(t)

	err := runIndex(context.Background(), app, []string{filepath.Join(dir, "missing", "*.yaml")}, false, &bytes.Buffer{}, nil)
	if err == nil || !strings.Contains(err.Error(), "no files match") {
		t.Fatalf("expected no files error, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	app, dir := newTestApp(t)
	ctx := context.Background()

	if err := runIndex(ctx, app, []string{filepath.Join(dir, "catalog", "**", "*.yaml")}, false, &bytes.Buffer{}, nil); err != nil {
		t.Fatalf("runIndex: %v", err)
	}

	var out bytes.Buffer
	if err := runDelete(ctx, app, []string{"10", "99"}, false, &out); err != nil {
		t.Fatalf("runDelete: %v", err)
	}
	if strings.TrimSpace(out.String()) != "Deleted 1 of 2 episodes." {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	if err := runDelete(ctx, app, nil, true, &out); err != nil {
		t.Fatalf("runDelete all: %v", err)
	}
	if printed := query(t, app, "jazz", filter.Episode{}); len(printed[0].Podcasts) != 0 {
		t.Errorf("expected no hits after delete all, got %+v", printed[0].Podcasts)
	}
}

func TestQuery_RawRequests(t *testing.T) {
	app, dir := newTestApp(t)
	ctx := context.Background()

	if err := runIndex(ctx, app, []string{filepath.Join(dir, "catalog", "**", "*.yaml")}, false, &bytes.Buffer{}, nil); err != nil {
		t.Fatalf("runIndex: %v", err)
	}

	body := `[{"query": "jazz", "top_k": 2}, {"query": "news", "filter": {"language": "de"}}]`
	reqs, err := readRequests("-", strings.NewReader(body))
	if err != nil {
		t.Fatalf("readRequests: %v", err)
	}

	var out bytes.Buffer
	if err := runQuery(ctx, app, reqs, true, &out); err != nil {
		t.Fatalf("runQuery: %v", err)
	}

	var printed []result.Query
	if err := json.Unmarshal(out.Bytes(), &printed); err != nil {
		t.Fatalf("decode output %s: %v", out.String(), err)
	}
	if len(printed) != 2 || len(printed[0].Results()) != 2 || len(printed[1].Results()) != 1 {
		t.Fatalf("unexpected output %s", out.String())
	}
	news := printed[1].Results()[0]
	if news.ID() != "20" || news.Metadata().PodcastID() != 2 || news.Metadata().Language() != "de" {
		t.Errorf("unexpected hit %+v", news)
	}
	if news.Text() != "Election news from the capital" || len(news.Embedding()) != 4 {
		t.Errorf("hit must carry text and embedding, got %+v", news)
	}
}

func TestReadRequests_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty list", `[]`},
		{"missing query", `[{"top_k": 1}]`},
		{"not json", `query=jazz`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readRequests("-", strings.NewReader(tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestHealth_MemoryBackend(t *testing.T) {
	app, _ := newTestApp(t)

	r := app.health.Check(context.Background())
	if r.Status != health.Healthy {
		t.Errorf("expected healthy, got %+v", r)
	}
	if r.Checks["database"] != health.CheckSkipped || r.Checks["embedding"] != health.CheckOK {
		t.Errorf("unexpected checks %+v", r.Checks)
	}
}

func TestRootCommand(t *testing.T) {
	dir := t.TempDir()
	srv := keywordServer(t)
	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := "database:\n  driver: memory\ncollection:\n  dimensions: 4\n" +
		"embedding:\n  base_url: " + srv.URL + "\ncatalog:\n  path: " + filepath.Join(dir, "catalog.db") +
		"\nlogging:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	reqPath := filepath.Join(dir, "requests.json")
	if err := os.WriteFile(reqPath, []byte(`[{"query": "jazz", "top_k": 2}]`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{"delete all", []string{"delete", "--all"}, "Deleted every episode.", ""},
		{"delete nothing", []string{"delete"}, "", "nothing to delete"},
		{"query without text", []string{"query"}, "", "no query given"},
		{"query requests", []string{"query", "--requests", reqPath, "--raw"}, `"results": []`, ""},
		{"query requests and text", []string{"query", "--requests", reqPath, "-q", "x"}, "", "mutually exclusive"},
		{"query", []string{"query", "-q", "jazz"}, `"query": "jazz"`, ""},
		{"index without files", []string{"index"}, "", "no catalog files"},
		{"index empty catalog", []string{"index", "--catalog", "--quiet"}, "No episodes to index.", ""},
		{"index catalog with files", []string{"index", "--catalog", "x.yaml"}, "", "does not take catalog files"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := NewRootCommand()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(append([]string{"--config", cfgPath, "--env", "local"}, tt.args...))

			err := root.Execute()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("expected output containing %q, got %q", tt.want, out.String())
			}
		})
	}
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/becutandavid/podcasts-backend/internal/domain/podcast"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/filter"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/request"
)

type queryOptions struct {
	queries   []string
	podcastID int64
	category  string
	language  string
	topK      int
	requests  string
	raw       bool
}

// queryOutput is one printed query with its podcast groups.
type queryOutput struct {
	Query    string           `json:"query"`
	Podcasts []*podcast.Group `json:"podcasts"`
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	o := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Search indexed episodes, grouped by podcast",
		Long: `Embed each query, search the vector collection and print the hits grouped by
podcast as JSON. Podcasts are ordered by their best (lowest) distance.

Examples:
  podcasts query -q "history of modal jazz"
  podcasts query -q "election results" --language de --top-k 5
  podcasts query -q "coltrane" -q "monk" --podcast-id 42
  podcasts query --requests queries.json --raw       # [{"query": ..., "filter": ..., "top_k": ...}]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.requests != "" {
				if len(o.queries) > 0 {
					return fmt.Errorf("--requests and --query are mutually exclusive")
				}
				reqs, err := readRequests(o.requests, cmd.InOrStdin())
				if err != nil {
					return err
				}
				return opts.withTimeout(cmd, func(ctx context.Context, app *App) error {
					return runQuery(ctx, app, reqs, o.raw, cmd.OutOrStdout())
				})
			}
			if len(o.queries) == 0 {
				return fmt.Errorf("no query given, use -q or --requests")
			}

			var f filter.Episode
			if cmd.Flags().Changed("podcast-id") {
				f.PodcastID = &o.podcastID
			}
			if o.category != "" {
				f.Category = &o.category
			}
			if o.language != "" {
				f.Language = &o.language
			}

			reqs := make([]request.Request, 0, len(o.queries))
			for _, q := range o.queries {
				r, err := request.New(q, f, o.topK)
				if err != nil {
					return err
				}
				reqs = append(reqs, r)
			}

			return opts.withTimeout(cmd, func(ctx context.Context, app *App) error {
				return runQuery(ctx, app, reqs, o.raw, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringArrayVarP(&o.queries, "query", "q", nil, "query text (repeatable)")
	cmd.Flags().Int64Var(&o.podcastID, "podcast-id", 0, "only episodes of this podcast")
	cmd.Flags().StringVar(&o.category, "category", "", "only episodes of podcasts in this primary category")
	cmd.Flags().StringVar(&o.language, "language", "", "only episodes of podcasts in this language")
	cmd.Flags().IntVarP(&o.topK, "top-k", "k", request.DefaultTopK, "episodes per query")
	cmd.Flags().StringVar(&o.requests, "requests", "", `JSON file of query requests, "-" for stdin`)
	cmd.Flags().BoolVar(&o.raw, "raw", false, "print scored episode hits instead of podcast groups")
	return cmd
}

// readRequests decodes a JSON list of query requests from path, or from stdin for "-".
func readRequests(path string, stdin io.Reader) ([]request.Request, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read requests: %w", err)
	}
	reqs, err := request.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("requests %s: %w", path, err)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("requests %s: no queries", path)
	}
	return reqs, nil
}

// runQuery searches reqs and prints one JSON document: the raw per-query hits,
// or the hits aggregated into podcast groups.
func runQuery(ctx context.Context, app *App, reqs []request.Request, raw bool, out io.Writer) error {
	results, err := app.datastore.Query(ctx, reqs)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if raw {
		return enc.Encode(results)
	}

	groups, err := app.aggregate.AggregateAll(ctx, results)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	output := make([]queryOutput, len(results))
	for i := range results {
		output[i] = queryOutput{Query: results[i].Query(), Podcasts: groups[i]}
		if output[i].Podcasts == nil {
			output[i].Podcasts = []*podcast.Group{}
		}
	}
	return enc.Encode(output)
}

package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/domain/podcast"
)

type indexOptions struct {
	patterns    []string
	fromCatalog bool
	replace     bool
	quiet       bool
}

func newIndexCommand(opts *rootOptions) *cobra.Command {
	o := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index [file...]",
		Short: "Import catalog files and index their episodes",
		Long: `Import podcast and episode records from YAML catalog files into the lookup
catalog, then embed and index every imported episode.

Examples:
  podcasts index --files 'data/**/*.yaml'
  podcasts index --files 'data/*.yaml' --replace     # Replace the whole collection
  podcasts index data/jazz.yaml data/news.yaml
  podcasts index --catalog --replace                 # Re-embed everything already imported`,
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns := append(slices.Clone(o.patterns), args...)
			switch {
			case o.fromCatalog && len(patterns) > 0:
				return fmt.Errorf("--catalog does not take catalog files")
			case !o.fromCatalog && len(patterns) == 0:
				return fmt.Errorf("no catalog files given, use --files, pass paths or --catalog")
			}
			return opts.withTimeout(cmd, func(ctx context.Context, app *App) error {
				out := cmd.OutOrStdout()
				progress := cmd.ErrOrStderr()
				if o.quiet {
					progress = nil
				}
				if o.fromCatalog {
					return runReindexCatalog(ctx, app, o.replace, out, progress)
				}
				return runIndex(ctx, app, patterns, o.replace, out, progress)
			})
		},
	}

	cmd.Flags().StringArrayVar(&o.patterns, "files", nil, "catalog files or ** glob patterns (repeatable)")
	cmd.Flags().BoolVar(&o.fromCatalog, "catalog", false, "index every episode already in the catalog")
	cmd.Flags().BoolVar(&o.replace, "replace", false, "delete every indexed episode before indexing")
	cmd.Flags().BoolVar(&o.quiet, "quiet", false, "disable the progress bar")
	return cmd
}

// expandPatterns resolves glob patterns to a sorted, duplicate-free file list.
func expandPatterns(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// runIndex imports the catalog files, then indexes episodes in chunks of the
// configured batch size. With replace, the first chunk replaces the collection.
func runIndex(ctx context.Context, app *App, patterns []string, replace bool, out, progress io.Writer) error {
	files, err := expandPatterns(patterns)
	if err != nil {
		return err
	}

	var episodes []podcast.Episode
	for _, f := range files {
		eps, err := app.catalog.ImportFile(ctx, f)
		if err != nil {
			return err
		}
		episodes = append(episodes, eps...)
	}
	app.logger.Info("Imported catalog", zap.Int("files", len(files)), zap.Int("episodes", len(episodes)))

	indexed, err := indexEpisodes(ctx, app, episodes, replace, progress)
	if err != nil {
		return err
	}
	if indexed == 0 {
		fmt.Fprintln(out, "No episodes to index.")
		return nil
	}
	fmt.Fprintf(out, "Indexed %d episodes from %d files.\n", indexed, len(files))
	return nil
}

// runReindexCatalog indexes every catalog episode, e.g. after switching embedding models.
func runReindexCatalog(ctx context.Context, app *App, replace bool, out, progress io.Writer) error {
	episodes, err := app.catalog.Episodes(ctx)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	indexed, err := indexEpisodes(ctx, app, episodes, replace, progress)
	if err != nil {
		return err
	}
	if indexed == 0 {
		fmt.Fprintln(out, "No episodes to index.")
		return nil
	}
	fmt.Fprintf(out, "Indexed %d episodes from the catalog.\n", indexed)
	return nil
}

// indexEpisodes indexes episodes in chunks of the configured batch size and returns
// how many were indexed. With replace, the first chunk replaces the collection and
// zero episodes clear it.
func indexEpisodes(ctx context.Context, app *App, episodes []podcast.Episode, replace bool, progress io.Writer) (int, error) {
	if len(episodes) == 0 {
		if replace {
			if _, err := app.datastore.Delete(ctx, nil, true); err != nil {
				return 0, fmt.Errorf("clear collection: %w", err)
			}
		}
		return 0, nil
	}

	bar := newProgressBar(len(episodes), progress)
	chunk := app.cfg.Index.BatchSize
	indexed := 0

	for start := 0; start < len(episodes); start += chunk {
		end := min(start+chunk, len(episodes))

		var (
			ids []string
			err error
		)
		if replace && start == 0 {
			ids, err = app.indexing.Reindex(ctx, episodes[start:end])
		} else {
			ids, err = app.indexing.AddEpisodes(ctx, episodes[start:end])
		}
		indexed += len(ids)
		if err != nil {
			return indexed, fmt.Errorf("index episodes %d-%d (indexed %d): %w", start, end, indexed, err)
		}
		if bar != nil {
			_ = bar.Set(indexed)
		}
	}
	return indexed, nil
}

func newProgressBar(total int, w io.Writer) *progressbar.ProgressBar {
	if w == nil {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

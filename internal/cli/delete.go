package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	var (
		ids []string
		all bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete indexed episodes",
		Long: `Delete episode vectors by id, or every vector of the collection with --all.
--all drops and recreates the index and must not run concurrently with indexing.

Examples:
  podcasts delete --id 1001 --id 1002
  podcasts delete --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(ids) == 0 && !all {
				return fmt.Errorf("nothing to delete, use --id or --all")
			}
			return opts.withTimeout(cmd, func(ctx context.Context, app *App) error {
				return runDelete(ctx, app, ids, all, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringSliceVar(&ids, "id", nil, "episode id to delete (repeatable, comma separated)")
	cmd.Flags().BoolVar(&all, "all", false, "delete every episode of the collection")
	return cmd
}

func runDelete(ctx context.Context, app *App, ids []string, all bool, out io.Writer) error {
	n, err := app.datastore.Delete(ctx, ids, all)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if all {
		fmt.Fprintln(out, "Deleted every episode.")
		return nil
	}
	fmt.Fprintf(out, "Deleted %d of %d episodes.\n", n, len(ids))
	return nil
}

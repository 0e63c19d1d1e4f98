package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ragkb/internal/domain"
	"ragkb/internal/loader"
)

func newIndexCmd(a *app) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Load a directory into the store and build the index",
		Long: `Reads every matching file under dir (or loader.dir from the config),
adds new and changed files to the document store, removes files that
disappeared and rebuilds the index.

With the default memory store the result only lives for this run; set
store.type to sqlite to keep the documents between runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runIndex(cmd.Context(), cmd, a, dir, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, a *app, dir string, jsonOut bool) error {
	if err := a.open(ctx, dir); err != nil {
		return err
	}
	if a.loader == nil {
		return fmt.Errorf("%w: no directory given and loader.dir is not set", domain.ErrInvalidArgument)
	}
	res, err := a.refresh(ctx)
	if err != nil {
		return err
	}
	st := a.engine.Stats()

	out := cmd.OutOrStdout()
	if jsonOut || !isTerminal(out) {
		return writeJSON(out, struct {
			Sync  loader.Result `json:"sync"`
			Stats domain.Stats  `json:"stats"`
		}{res, st})
	}
	fmt.Fprintf(out, "Synced %s: %d added, %d updated, %d removed, %d unchanged\n",
		a.loader.Dir(), res.Added, res.Updated, res.Removed, res.Unchanged)
	printStats(out, st)
	return nil
}

package cmd

import (
	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	var (
		jsonOut bool
		dir     string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.prepare(cmd.Context(), dir); err != nil {
				return err
			}
			st := a.engine.Stats()
			out := cmd.OutOrStdout()
			if jsonOut || !isTerminal(out) {
				return writeJSON(out, st)
			}
			printStats(out, st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to sync first (overrides loader.dir)")
	return cmd
}

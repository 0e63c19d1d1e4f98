package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ragkb/internal/domain"
)

const snippetRunes = 240

type searchFlags struct {
	k         int
	threshold float64
	jsonOut   bool
	dir       string
}

func newSearchCmd(a *app) *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank stored passages for a question",
		Long: `Ranks the indexed chunks against the query and prints the best ones.

Only chunks scoring strictly above the threshold are returned. When -k or
--threshold are omitted the configured defaults for the active strategy
are used.

Examples:
  ragkb search "what do ribosomes do" --dir ./notes
  ragkb search "energy" -k 10 --threshold 0 --strategy cosine`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, a, strings.Join(args, " "), flags)
		},
	}

	cmd.Flags().IntVarP(&flags.k, "limit", "k", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64Var(&flags.threshold, "threshold", 0, "Minimum score, exclusive (default per strategy)")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&flags.dir, "dir", "", "Directory to sync before searching (overrides loader.dir)")
	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, a *app, query string, flags searchFlags) error {
	if err := a.prepare(ctx, flags.dir); err != nil {
		return err
	}

	opts, err := a.cfg.EngineOptions()
	if err != nil {
		return err
	}
	k, threshold := opts.TopK, opts.Threshold
	if cmd.Flags().Changed("limit") {
		k = flags.k
	}
	if cmd.Flags().Changed("threshold") {
		threshold = flags.threshold
	}

	results, err := a.engine.Search(query, k, threshold)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flags.jsonOut || !isTerminal(out) {
		return writeJSON(out, struct {
			Query     string                `json:"query"`
			K         int                   `json:"k"`
			Threshold float64               `json:"threshold"`
			Results   []domain.SearchResult `json:"results"`
		}{query, k, threshold, results})
	}

	if len(results) == 0 {
		fmt.Fprintf(out, "No passages scored above %.2f for %q.\n", threshold, query)
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%d. %s  (score %.3f, %s)\n", i+1, r.Title, r.Score, r.ChunkID)
		fmt.Fprintf(out, "   %s\n\n", strings.ReplaceAll(r.Snippet(snippetRunes), "\n", "\n   "))
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragkb/internal/domain"
	"ragkb/internal/summarizer"
	"ragkb/internal/tui"
)

func newTUICmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive search in the terminal",
		Long: `Opens a terminal UI: type a question, press Enter to rank passages,
use up/down to browse results and ctrl+r to resync and rebuild the index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), a, dir)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to load documents from (overrides loader.dir)")
	return cmd
}

func runTUI(ctx context.Context, a *app, dir string) error {
	if err := a.prepare(ctx, dir); err != nil {
		return err
	}
	opts, err := a.cfg.EngineOptions()
	if err != nil {
		return err
	}

	summary, err := a.headerSummary(ctx)
	if err != nil {
		a.logger.Warn("summary failed", zap.Error(err))
	}
	m := tui.New(a.engine, tui.Options{
		TopK:      opts.TopK,
		Threshold: opts.Threshold,
		Summary:   summary,
		Context:   ctx,
		Rebuild: func(ctx context.Context) error {
			_, err := a.refresh(ctx)
			return err
		},
	})
	if _, err := tea.NewProgram(m, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func (a *app) headerSummary(ctx context.Context) (string, error) {
	var sum domain.Summarizer
	switch a.cfg.Summarizer.Type {
	case "frequency":
		sum = summarizer.NewFrequencySummarizer()
	default:
		return "", nil
	}
	docs, err := a.store.GetAll(ctx)
	if err != nil {
		return "", err
	}
	return summarizer.SummarizeDocuments(sum, docs, a.cfg.Summarizer.MaxSentences)
}

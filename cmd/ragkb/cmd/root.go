// Package cmd provides the CLI commands for ragkb.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragkb/internal/config"
	"ragkb/internal/logger"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	strategy   string
	logLevel   string
}

// NewRootCmd creates the root command for the ragkb CLI.
func NewRootCmd() *cobra.Command {
	var flags globalFlags
	a := &app{}

	cmd := &cobra.Command{
		Use:   "ragkb",
		Short: "Local knowledge-base retrieval over plain-text documents",
		Long: `ragkb chunks a collection of text documents, indexes them in memory
and ranks passages for a question with TF-IDF cosine similarity or BM25.

Examples:
  ragkb index ./notes
  ragkb search "how do mitochondria produce energy" --dir ./notes
  ragkb serve --dir ./notes
  ragkb tui --dir ./notes`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/ragkb/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.strategy, "strategy", "", "Scoring strategy: bm25 or cosine (overrides config)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	cmd.AddCommand(newIndexCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newStatsCmd(a))
	cmd.AddCommand(newDocsCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newTUICmd(a))
	closeAfterRun(cmd, a)
	return cmd
}

// closeAfterRun releases the app resources once a command finishes, including on error.
func closeAfterRun(c *cobra.Command, a *app) {
	if run := c.RunE; run != nil {
		c.RunE = func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return run(cmd, args)
		}
	}
	for _, sub := range c.Commands() {
		closeAfterRun(sub, a)
	}
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) init(cmd *cobra.Command, flags globalFlags) error {
	_ = godotenv.Load()

	var (
		cfg *config.AppConfig
		err error
	)
	if flags.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(flags.configPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.strategy != "" {
		cfg.Retrieval.Strategy = flags.strategy
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	level := flags.logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	// keep one-shot commands quiet unless asked otherwise
	if level == "" && cmd.Name() != "serve" {
		level = "warn"
	}
	log, err := logger.NewLogger(cfg.Logging.Env, level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = log
	a.logger.Debug("config loaded", zap.String("strategy", cfg.Retrieval.Strategy), zap.String("store", cfg.Store.Type))
	return nil
}

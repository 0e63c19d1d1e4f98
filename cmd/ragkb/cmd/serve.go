package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragkb/internal/transport/httpapi"
	"ragkb/internal/watcher"
)

type serveFlags struct {
	addr  string
	dir   string
	watch bool
}

func newServeCmd(a *app) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Long: `Starts the JSON API (/v1/search, /v1/documents, /v1/stats), the
/healthz probe and the Prometheus /metrics endpoint.

With --watch the loader directory is watched and the index is rebuilt
after files change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, a, flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "", "Listen address (default server.addr from config)")
	cmd.Flags().StringVar(&flags.dir, "dir", "", "Directory to load documents from (overrides loader.dir)")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "Rebuild the index when files in the directory change (overrides watch.enabled)")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, a *app, flags serveFlags) error {
	if err := a.prepare(ctx, flags.dir); err != nil {
		return err
	}
	opts, err := a.cfg.EngineOptions()
	if err != nil {
		return err
	}

	addr := a.cfg.Server.Addr
	if flags.addr != "" {
		addr = flags.addr
	}
	api := httpapi.NewServer(a.engine, a.store, httpapi.Options{TopK: opts.TopK, Threshold: opts.Threshold}, a.logger)
	srv := &http.Server{
		Handler:      api.Routes(),
		ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.Server.WriteTimeoutSec) * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()), zap.Any("stats", a.engine.Stats()))
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.Server.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Error during shutdown", zap.Error(err))
		}
		return nil
	})

	if (flags.watch || a.cfg.Watch.Enabled) && a.loader != nil {
		w := watcher.New(a.loader.Dir(), a.cfg.Debounce(), a.onDirChange, a.logger)
		w.Filter = a.loader.Matches
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("Server stopped gracefully")
	return nil
}

// onDirChange resyncs the loader directory and rebuilds only when the store changed.
func (a *app) onDirChange(ctx context.Context) error {
	res, err := a.loader.Sync(ctx, a.store)
	if err != nil {
		return err
	}
	if !res.Changed() {
		return nil
	}
	return a.engine.RebuildIndex(ctx)
}

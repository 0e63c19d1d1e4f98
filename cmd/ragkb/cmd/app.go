package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ragkb/internal/config"
	"ragkb/internal/domain"
	"ragkb/internal/engine"
	"ragkb/internal/loader"
	"ragkb/internal/store/memory"
	"ragkb/internal/store/sqlite"
)

// app holds the components shared by the subcommands of one invocation.
type app struct {
	cfg    *config.AppConfig
	logger *zap.Logger
	store  domain.DocumentStore
	engine *engine.Engine
	loader *loader.Loader
}

// open wires the store, the engine and, when a directory is known, the loader.
// dir overrides loader.dir from the config.
func (a *app) open(ctx context.Context, dir string) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.store = store

	opts, err := a.cfg.EngineOptions()
	if err != nil {
		return err
	}
	eng, err := engine.New(store, opts, a.logger)
	if err != nil {
		return err
	}
	a.engine = eng

	if dir == "" {
		dir = a.cfg.Loader.Dir
	}
	if dir != "" {
		a.loader = loader.New(dir, a.cfg.Loader.Extensions, a.logger)
	}
	return nil
}

func (a *app) openStore(ctx context.Context) (domain.DocumentStore, error) {
	switch a.cfg.Store.Type {
	case "sqlite":
		st, err := sqlite.Open(ctx, a.cfg.Store.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.logger.Debug("sqlite store opened", zap.String("path", st.Path()))
		return st, nil
	default:
		return memory.NewStorage(), nil
	}
}

// prepare opens the components, syncs the loader directory if any and builds the index.
func (a *app) prepare(ctx context.Context, dir string) error {
	if err := a.open(ctx, dir); err != nil {
		return err
	}
	_, err := a.refresh(ctx)
	return err
}

// refresh syncs the loader directory into the store and rebuilds the index.
func (a *app) refresh(ctx context.Context) (loader.Result, error) {
	var res loader.Result
	if a.loader != nil {
		var err error
		if res, err = a.loader.Sync(ctx, a.store); err != nil {
			return res, fmt.Errorf("sync %s: %w", a.loader.Dir(), err)
		}
	}
	if err := a.engine.RebuildIndex(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
		a.store = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

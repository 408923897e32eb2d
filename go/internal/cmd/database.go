package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoresync/go/internal/config"
	"github.com/mcdev12/scoresync/go/internal/store"
)

func setupStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Warn().Msg("using in-memory store, nothing survives a restart")
		return store.NewMemory(), nil

	case config.BackendPostgres:
		pg := cfg.Store.Postgres
		kv, err := store.OpenPostgres(ctx, pg.DSN(), cfg.Store.Namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		log.Info().
			Str("host", pg.Host).
			Str("database", pg.Database).
			Str("namespace", cfg.Store.Namespace).
			Msg("connected to postgres store")
		return kv, nil

	default:
		kv, err := store.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.Store.SQLitePath).Msg("opened sqlite store")
		return kv, nil
	}
}

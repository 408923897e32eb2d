package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoresync/go/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("scoresync exited")
	}
}

func run() error {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	if opts.help {
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if err := telemetry.SetupLogging(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Enabled, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	kv, err := setupStore(ctx, cfg)
	if err != nil {
		return err
	}

	services, err := setupServices(ctx, cfg, kv)
	if err != nil {
		kv.Close()
		return err
	}

	if err := services.Start(ctx); err != nil {
		kv.Close()
		return err
	}

	server := setupServer(cfg, services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	log.Info().
		Str("application_id", services.State.ApplicationID().String()).
		Str("store", cfg.Store.Backend).
		Msg("scoresync started")

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	services.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown failed")
	}
	if err := kv.Close(); err != nil {
		log.Error().Err(err).Msg("store close failed")
	}

	log.Info().Msg("scoresync shutdown complete")
	return nil
}

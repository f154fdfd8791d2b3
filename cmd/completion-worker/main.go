package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/hackgods/telemedicine-scheduling/internal/app"
	"github.com/hackgods/telemedicine-scheduling/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := app.NewLogger("dev", "completion-worker")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := app.NewLogger(cfg.Env, "completion-worker")
	if err := checkStore(cfg); err != nil {
		logger.Fatal().Err(err).Msg("unsupported store")
	}
	logger.Info().Dur("interval", cfg.WorkerInterval).Msg("completion-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	app.RunCompletionLoop(rootCtx, a.Appointments, cfg.WorkerInterval, logger)
	logger.Info().Msg("completion-worker stopped")
}

// checkStore rejects the memory store: it lives inside api-server, which
// runs the completion loop itself.
func checkStore(cfg config.Config) error {
	if cfg.StoreBackend != config.BackendPostgres {
		return fmt.Errorf("completion-worker needs STORE_BACKEND=postgres, got %q", cfg.StoreBackend)
	}
	return nil
}

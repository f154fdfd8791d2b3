package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/telemedicine-scheduling/internal/app"
	"github.com/hackgods/telemedicine-scheduling/internal/config"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := app.NewLogger("dev", "api-server")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := app.NewLogger(cfg.Env, "api-server")
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreBackend).
		Str("timezone", cfg.ClinicTimezone).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	// The in-memory store lives in this process, so nothing else can run
	// the completion worker against it.
	if cfg.StoreBackend == config.BackendMemory {
		go app.RunCompletionLoop(rootCtx, a.Appointments, cfg.WorkerInterval, logger.With().Str("component", "completion").Logger())
	}

	srv := newHTTPServer(cfg.HTTPPort, a.Router(version))

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		a.Close()
		os.Exit(1)
	}
	logger.Info().Msg("api-server stopped")
}

func newHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Package app wires configuration into concrete backends and services. All
// binaries build their dependencies through New.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/telemedicine-scheduling/internal/api"
	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
	"github.com/hackgods/telemedicine-scheduling/internal/availability"
	"github.com/hackgods/telemedicine-scheduling/internal/config"
	"github.com/hackgods/telemedicine-scheduling/internal/consultation"
	"github.com/hackgods/telemedicine-scheduling/internal/db"
	"github.com/hackgods/telemedicine-scheduling/internal/lock"
	"github.com/hackgods/telemedicine-scheduling/internal/prescription"
	redisclient "github.com/hackgods/telemedicine-scheduling/internal/redis"
	"github.com/hackgods/telemedicine-scheduling/internal/session"
	"github.com/hackgods/telemedicine-scheduling/internal/video"
)

// NewLogger returns a console logger in dev and a JSON logger otherwise, and
// installs it as the global zerolog logger.
func NewLogger(env, service string) zerolog.Logger {
	var logger zerolog.Logger
	if env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		logger = zerolog.New(os.Stderr)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	logger = logger.With().Timestamp().Str("service", service).Logger()
	log.Logger = logger
	return logger
}

type App struct {
	Config        config.Config
	Logger        zerolog.Logger
	Pool          *pgxpool.Pool
	Redis         *redis.Client
	Publisher     *redisclient.Publisher
	Tokens        *auth.TokenManager
	Availability  *availability.Store
	Appointments  *appointment.Service
	Payments      *appointment.PaymentGate
	Sessions      *session.Handoff
	Prescriptions *prescription.Service
	Consultations *consultation.Service

	closers []func()
}

// New connects the configured backends and builds the services on top.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	var (
		availRepo availability.Repository
		apptRepo  appointment.Repository
		rxRepo    prescription.Repository
		chatRepo  consultation.Repository
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.Open(pgCtx, cfg.PostgresDSN, logger)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
		availRepo = availability.NewPgRepository(pool)
		apptRepo = appointment.NewPgRepository(pool)
		rxRepo = prescription.NewPgRepository(pool)
		chatRepo = consultation.NewPgRepository(pool)
	default:
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		availRepo = availability.NewMemoryRepository()
		apptRepo = appointment.NewMemoryRepository()
		rxRepo = prescription.NewMemoryRepository()
		chatRepo = consultation.NewMemoryRepository()
	}

	var locker lock.Locker = lock.NewLocalLocker()
	opts := []appointment.Option{}
	var chatOpts []consultation.Option
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		})
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockRetries)
		a.Publisher = redisclient.NewPublisher(rdb, cfg.EventsChannel)
		opts = append(opts, appointment.WithPublisher(a.Publisher))
		chatOpts = append(chatOpts, consultation.WithPublisher(a.Publisher))
	} else if cfg.StoreBackend == config.BackendPostgres {
		logger.Warn().Msg("REDIS_ADDR not set, locks are process-local; run a single api-server")
	}

	a.Tokens = auth.NewTokenManager(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthTokenTTL)
	a.Availability = availability.NewStore(availRepo, logger)
	if _, err := a.Availability.SeedDefaults(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Appointments = appointment.NewService(apptRepo, a.Availability, locker, cfg, logger, opts...)
	a.Payments = appointment.NewPaymentGate(a.Appointments)
	a.Sessions = session.NewHandoff(a.Appointments, video.NewIssuer(cfg, logger), cfg.JoinWindowBefore, cfg.SessionDuration, logger)
	a.Prescriptions = prescription.NewService(rxRepo, a.Appointments, logger)
	if _, err := a.Prescriptions.SeedCatalog(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Consultations = consultation.NewService(chatRepo, a.Appointments, logger, chatOpts...)
	return a, nil
}

// Router builds the HTTP handler over the app's services.
func (a *App) Router(version string) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Service:       a.Appointments,
		Payments:      a.Payments,
		Sessions:      a.Sessions,
		Availability:  a.Availability,
		Prescriptions: a.Prescriptions,
		Consultations: a.Consultations,
		Tokens:        a.Tokens,
		Departments:   a.Config.Departments,
		Location:      a.Config.Location,
		PgPool:        a.Pool,
		Redis:         a.Redis,
		Env:           a.Config.Env,
		Version:       version,
		Logger:        a.Logger,
	})
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

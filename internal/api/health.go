package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness and dependency readiness. A nil pool or
// client means that backend is not in use.
type HealthHandler struct {
	pgPool  *pgxpool.Pool
	redis   *redis.Client
	env     string
	version string
}

func NewHealthHandler(pgPool *pgxpool.Pool, redis *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		pgPool:  pgPool,
		redis:   redis,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

// Readiness fails when Postgres is down. Redis holds the locks, so losing it
// also makes the service unable to take writes.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := map[string]string{"postgres": "disabled", "redis": "disabled"}
	status := "ok"

	if h.pgPool != nil {
		pgCtx, pgCancel := context.WithTimeout(ctx, time.Second)
		err := h.pgPool.Ping(pgCtx)
		pgCancel()
		if err != nil {
			deps["postgres"] = "down"
			status = "error"
		} else {
			deps["postgres"] = "ok"
		}
	}

	if h.redis != nil {
		redisCtx, redisCancel := context.WithTimeout(ctx, time.Second)
		err := h.redis.Ping(redisCtx).Err()
		redisCancel()
		if err != nil {
			deps["redis"] = "down"
			status = "error"
		} else {
			deps["redis"] = "ok"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}

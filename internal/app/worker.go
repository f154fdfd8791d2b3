package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
)

// RunCompletionLoop completes elapsed sessions once at startup and then on
// every tick until ctx is done.
func RunCompletionLoop(ctx context.Context, svc *appointment.Service, interval time.Duration, logger zerolog.Logger) {
	runOnce(ctx, svc, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("stopping completion loop")
			return
		case <-ticker.C:
			runOnce(ctx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CompleteElapsed(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("completion run failed")
		return
	}
	logger.Info().Int("completed", n).Dur("took", time.Since(start)).Msg("completion run finished")
}

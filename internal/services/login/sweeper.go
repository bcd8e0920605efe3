package login

import (
	"context"
	"time"

	"github.com/dropDatabas3/fitlink/internal/observability/logger"
)

// RunSweeper purga challenges vencidos cada interval hasta que ctx termine.
func RunSweeper(ctx context.Context, store ChallengeStore, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	log := logger.From(ctx).With(logger.Component("login.sweeper"))
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.SweepExpired(ctx)
			if err != nil {
				log.Warn("challenge sweep failed", logger.Err(err))
				continue
			}
			if n > 0 {
				log.Debug("expired challenges swept", logger.Count(n))
			}
		}
	}
}

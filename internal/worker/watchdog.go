package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// WatchdogStore is the store surface the watchdog needs.
type WatchdogStore interface {
	FailStuckCalls(ctx context.Context, threshold time.Duration) ([]string, error)
}

// Watchdog terminally fails calls stuck in the processing state. Crashed
// workers are normally covered by the queue's visibility timeout; the
// watchdog closes the remaining gap so no call sits in processing forever.
type Watchdog struct {
	Store     WatchdogStore
	Logger    zerolog.Logger
	Threshold time.Duration
	Interval  time.Duration
}

func (wd *Watchdog) Run(ctx context.Context) {
	interval := wd.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := wd.Store.FailStuckCalls(ctx, wd.Threshold)
			if err != nil {
				wd.Logger.Error().Err(err).Msg("stuck-call scan failed")
				continue
			}
			for _, id := range ids {
				wd.Logger.Warn().Str("call_id", id).Msg("failed stuck call")
			}
		}
	}
}

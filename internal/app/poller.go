package app

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultPollInterval = 30 * time.Second
	maxBackoff          = 30 * time.Second
)

type refresher interface {
	Refresh(ctx context.Context) error
}

// StartPoller launches a background goroutine that refreshes the stores at
// a fixed cadence, backing off exponentially while refreshes fail. It
// returns immediately.
func StartPoller(ctx context.Context, r refresher, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	go func() {
		failures := 0
		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			if err := r.Refresh(ctx); err != nil {
				failures++
				logger.Warn("poll failed",
					slog.Int("consecutive_failures", failures),
					slog.String("error", err.Error()),
				)
			} else {
				failures = 0
			}
			timer.Reset(calculateBackoff(failures, interval))
		}
	}()
}

// calculateBackoff doubles base per consecutive failure, capped at
// maxBackoff. A base above the cap is never shortened.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	limit := max(base, maxBackoff)
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}

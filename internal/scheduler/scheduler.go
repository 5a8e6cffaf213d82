// Package scheduler enforces the retention window: once per night it
// purges records older than the configured number of days.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"udp-monitor/internal/metrics"
	"udp-monitor/internal/storage"
)

// errRetryDelay is how long the scheduler waits after a failed purge
// before recomputing the next midnight, so a broken store cannot turn
// the loop into a hot spin.
const errRetryDelay = time.Hour

type Scheduler struct {
	store     storage.Store
	retention time.Duration
	logger    zerolog.Logger

	now        func() time.Time
	retryDelay time.Duration
}

func New(store storage.Store, retention time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		retention:  retention,
		logger:     logger.With().Str("component", "retention-scheduler").Logger(),
		now:        time.Now,
		retryDelay: errRetryDelay,
	}
}

// Run sleeps until the next local midnight, purges, and repeats until
// ctx is cancelled. Cancellation interrupts the sleep promptly.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Float64("retention_days", s.retention.Hours()/24).
		Msg("retention scheduler started")

	for {
		wait := nextMidnight(s.now()).Sub(s.now())
		if !s.sleep(ctx, wait) {
			s.logger.Info().Msg("retention scheduler stopped")
			return
		}

		deleted, err := s.store.DeleteOlderThan(s.retention)
		if err != nil {
			s.logger.Error().Err(err).Msg("retention purge failed")
			if !s.sleep(ctx, s.retryDelay) {
				s.logger.Info().Msg("retention scheduler stopped")
				return
			}
			continue
		}

		metrics.MessagesPurged.Add(float64(deleted))
		s.logger.Info().Int64("deleted", deleted).Msg("retention purge completed")
	}
}

// sleep waits for d or until ctx is done; reports false on cancellation.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextMidnight returns the first local midnight strictly after now.
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if !midnight.After(now) {
		midnight = midnight.AddDate(0, 0, 1)
	}
	return midnight
}

package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper reclaims stale session records on a fixed interval. It is
// pure garbage collection: request paths never depend on it, and a
// failed sweep only logs. Running one sweeper per process against a
// shared store is safe because DeleteExpired is idempotent.
type Sweeper struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewSweeper builds a sweeper for a store. Zero durations pick the
// defaults; a nil logger falls back to the default.
func NewSweeper(store Store, interval, retention time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:     store,
		interval:  interval,
		retention: retention,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.store.DeleteExpired(ctx, s.retention)
	if err != nil {
		s.logger.Warn("session sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("session sweep reclaimed stale records", "removed", removed)
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"syspulse/internal/model"
	"syspulse/internal/store"
)

// appendRetries is how many extra insert attempts a tick gets when storage
// reports itself unavailable. The sample is skipped once they are spent.
const appendRetries = 2

const (
	stateIdle int32 = iota
	stateRunning
	stateStopping
	stateStopped
)

// Source produces one host sample per call.
type Source interface {
	Collect(ctx context.Context) (model.MetricSample, error)
}

// Store is the slice of storage the scheduler needs.
type Store interface {
	Append(ctx context.Context, sample *model.MetricSample) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler drives periodic collection and retention maintenance on two
// independent tickers. A failed cycle never kills the loops; only corrupt
// storage does.
type Scheduler struct {
	logger              *slog.Logger
	source              Source
	store               Store
	collectInterval     time.Duration
	maintenanceInterval time.Duration
	retention           time.Duration
	errorBackoff        time.Duration

	state atomic.Int32
	now   func() time.Time
}

func NewScheduler(
	logger *slog.Logger,
	source Source,
	st Store,
	collectInterval, maintenanceInterval, retention, errorBackoff time.Duration,
) *Scheduler {
	if errorBackoff <= 0 {
		errorBackoff = time.Second
	}
	return &Scheduler{
		logger:              logger,
		source:              source,
		store:               st,
		collectInterval:     collectInterval,
		maintenanceInterval: maintenanceInterval,
		retention:           retention,
		errorBackoff:        errorBackoff,
		now:                 time.Now,
	}
}

// State reports the lifecycle phase: idle, running, stopping, or stopped.
func (s *Scheduler) State() string {
	switch s.state.Load() {
	case stateRunning:
		return "running"
	case stateStopping:
		return "stopping"
	case stateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Run blocks until ctx is cancelled or storage turns corrupt. A zero
// retention window disables the maintenance loop entirely.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		return fmt.Errorf("scheduler already started (state %s)", s.State())
	}
	defer s.state.Store(stateStopped)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.runCollectLoop(gctx)
	})
	if s.retention > 0 {
		g.Go(func() error {
			return s.runMaintenanceLoop(gctx)
		})
	}
	return g.Wait()
}

// RunOnce performs a single collect-and-persist cycle and returns its error
// unfiltered. The loop policy (skip, drop, halt) is the caller's to apply.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.tickOnce(ctx)
}

func (s *Scheduler) runCollectLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.collectInterval)
	defer ticker.Stop()

	if err := s.handleCollectTick(ctx); err != nil {
		s.beginStop()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.beginStop()
			return nil
		case <-ticker.C:
			if err := s.handleCollectTick(ctx); err != nil {
				s.beginStop()
				return err
			}
		}
	}
}

func (s *Scheduler) runMaintenanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.maintenanceInterval)
	defer ticker.Stop()

	if err := s.purgeExpired(ctx); err != nil {
		s.beginStop()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.purgeExpired(ctx); err != nil {
				s.beginStop()
				return err
			}
		}
	}
}

// handleCollectTick applies the cycle policy: collection failures and
// exhausted storage retries skip the sample, constraint violations drop it,
// corruption is fatal.
func (s *Scheduler) handleCollectTick(ctx context.Context) error {
	err := s.tickOnce(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return nil
	case store.IsCorrupt(err):
		s.logger.Error("storage corrupt, halting collection", "error", err)
		return err
	case store.IsConstraint(err):
		s.logger.Warn("sample rejected by storage, dropped", "error", err)
		return nil
	case store.IsUnavailable(err):
		s.logger.Error("storage unavailable, sample skipped", "error", err)
		s.sleepWithContext(ctx, s.errorBackoff)
		return nil
	default:
		s.logger.Warn("collection failed, sample skipped", "error", err)
		return nil
	}
}

func (s *Scheduler) tickOnce(ctx context.Context) error {
	sample, err := s.source.Collect(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= appendRetries; attempt++ {
		if attempt > 0 {
			s.sleepWithContext(ctx, s.errorBackoff)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if _, err := s.store.Append(ctx, &sample); err != nil {
			lastErr = err
			if store.IsUnavailable(err) {
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

func (s *Scheduler) purgeExpired(ctx context.Context) error {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.store.PurgeOlderThan(ctx, cutoff)
	switch {
	case err == nil:
		if deleted > 0 {
			s.logger.Info("purged expired samples", "deleted", deleted, "cutoff", cutoff.UTC().Format(time.RFC3339))
		}
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return nil
	case store.IsCorrupt(err):
		s.logger.Error("storage corrupt during purge, halting", "error", err)
		return err
	default:
		s.logger.Error("purge failed", "error", err)
		s.sleepWithContext(ctx, s.errorBackoff)
		return nil
	}
}

func (s *Scheduler) beginStop() {
	s.state.CompareAndSwap(stateRunning, stateStopping)
}

func (s *Scheduler) sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syspulse/internal/api"
	"syspulse/internal/collector"
	"syspulse/internal/config"
	"syspulse/internal/model"
	"syspulse/internal/notify"
	"syspulse/internal/report"
	"syspulse/internal/store"
)

type Agent struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *store.Store
	scheduler *collector.Scheduler
	reporter  *report.Reporter
	notifier  *notify.Notifier
	api       *api.Server
	health    *HealthStatus
}

func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	health := NewHealthStatus()
	health.SetStoreOK(true)
	wrapped := &healthStore{store: st, health: health}

	source := &healthSource{source: collector.NewHostSource(cfg.Collection.PingHost), health: health}
	scheduler := collector.NewScheduler(
		logger,
		source,
		wrapped,
		cfg.CollectionInterval(),
		cfg.MaintenanceInterval(),
		cfg.RetentionWindow(),
		cfg.ErrorBackoff,
	)

	reporter := report.NewReporter(st)

	var notifier *notify.Notifier
	if cfg.Notifications.Enabled {
		transport, err := notify.NewTransportFromConfig(cfg)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("notification transport: %w", err)
		}
		notifier = notify.NewNotifier(logger, st, transport, cfg.Hostname)
	}

	var apiSrv *api.Server
	if cfg.API.Enabled {
		var apiNotifier api.Notifier
		if notifier != nil {
			apiNotifier = notifier
		}
		apiSrv = api.NewServer(logger, cfg, st, reporter, apiNotifier, health)
	}

	return &Agent{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		scheduler: scheduler,
		reporter:  reporter,
		notifier:  notifier,
		api:       apiSrv,
		health:    health,
	}, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting syspulse",
		"db", a.cfg.Database.Path,
		"interval", a.cfg.CollectionInterval(),
		"retention", a.cfg.RetentionWindow())
	if a.cfg.Maintenance.RetentionDays == 0 {
		a.logger.Info("retention disabled, samples are kept forever")
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
		// Agent terminated by itself (startup error/runtime error/parent ctx canceled).
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown",
			"signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
			// graceful stop completed in time
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	a.shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("syspulse stopped")
	return nil
}

// RunOnce performs a single collection tick and returns the stored sample.
func (a *Agent) RunOnce(ctx context.Context) (*model.MetricSample, error) {
	if err := a.scheduler.RunOnce(ctx); err != nil {
		return nil, err
	}
	sample, err := a.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return sample, nil
}

// Report renders the last N hours (0 = everything stored).
func (a *Agent) Report(ctx context.Context, hours int, format report.Format) ([]byte, error) {
	to := time.Now().UTC()
	var from time.Time
	if hours > 0 {
		from = to.Add(-time.Duration(hours) * time.Hour)
	}
	return a.reporter.Render(ctx, from, to, format)
}

// Close releases the storage handle. Run does this itself; direct callers
// of RunOnce/Report own the cleanup.
func (a *Agent) Close() error {
	return a.store.Close()
}

func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.Log.JSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}

// healthSource counts probe failures on the way through so the health
// snapshot sees them; the scheduler only logs and moves on.
type healthSource struct {
	source collector.Source
	health *HealthStatus
}

func (s *healthSource) Collect(ctx context.Context) (model.MetricSample, error) {
	sample, err := s.source.Collect(ctx)
	if err != nil {
		s.health.MarkCollectionError()
	}
	return sample, err
}

// healthStore mirrors every storage outcome into the health counters on the
// way through.
type healthStore struct {
	store  *store.Store
	health *HealthStatus
}

func (s *healthStore) Append(ctx context.Context, sample *model.MetricSample) (int64, error) {
	id, err := s.store.Append(ctx, sample)
	if err != nil {
		s.health.SetStoreOK(false)
		s.health.MarkStorageError()
		return id, err
	}
	s.health.SetStoreOK(true)
	s.health.MarkSample(sample.Timestamp)
	return id, nil
}

func (s *healthStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	rows, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.health.SetStoreOK(false)
		return rows, err
	}
	s.health.SetStoreOK(true)
	s.health.MarkPurge(rows)
	return rows, nil
}

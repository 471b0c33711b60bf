package agent

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

func (a *Agent) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	if a.notifier != nil {
		g.Go(func() error {
			return a.runDigestLoop(gctx)
		})
	}
	if a.api != nil {
		g.Go(func() error {
			return a.api.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runDigestLoop pushes a digest every notification interval. Failures are
// counted and logged; they never stop the loop or touch collection.
func (a *Agent) runDigestLoop(ctx context.Context) error {
	interval := a.cfg.DigestInterval()
	t := time.NewTicker(interval)
	defer t.Stop()

	a.logger.Info("digest notifications enabled",
		"type", string(a.cfg.Notifications.Type), "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			res, err := a.notifier.Digest(ctx, interval)
			if err != nil {
				a.health.MarkDigest(false)
				a.logger.Error("digest delivery failed", "error", err)
				continue
			}
			if res.Skipped {
				a.logger.Debug("digest skipped, empty window")
				continue
			}
			a.health.MarkDigest(true)
			a.logger.Info("digest delivered",
				"delivery_id", res.DeliveryID, "transport", res.Transport, "attempts", res.Attempts)
		}
	}
}

func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := a.store.Count(ctx); err != nil {
				a.health.SetStoreOK(false)
				a.logger.Warn("store health check failed", "error", err)
				continue
			}
			a.health.SetStoreOK(true)
			a.logger.Debug("agent health", "snapshot", a.health.Snapshot())
		}
	}
}

func (a *Agent) shutdown() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", "error", err)
	}
	a.health.SetStoreOK(false)
}

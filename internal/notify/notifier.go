package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"syspulse/internal/model"
)

const (
	maxAttempts = 3
	baseBackoff = 2 * time.Second
	maxJitter   = 500 * time.Millisecond
)

// NotifyError is the terminal failure after every delivery attempt is spent.
type NotifyError struct {
	Transport string
	Err       error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify via %s: %v", e.Transport, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// Result describes one digest delivery.
type Result struct {
	DeliveryID string    `json:"delivery_id"`
	Transport  string    `json:"transport"`
	Attempts   int       `json:"attempts"`
	Skipped    bool      `json:"skipped"`
	SentAt     time.Time `json:"sent_at"`
}

// Store is the slice of storage the notifier needs.
type Store interface {
	Aggregate(ctx context.Context, from, to time.Time) (model.Aggregate, error)
}

// Notifier assembles periodic digests and pushes them through a single
// transport with bounded retries. It never touches collection; failures are
// the caller's to log and count.
type Notifier struct {
	logger    *slog.Logger
	store     Store
	transport Transport
	host      string
	backoff   time.Duration
	randMu    sync.Mutex
	randSrc   *rand.Rand
	now       func() time.Time
}

func NewNotifier(logger *slog.Logger, st Store, transport Transport, host string) *Notifier {
	return &Notifier{
		logger:    logger,
		store:     st,
		transport: transport,
		host:      host,
		backoff:   baseBackoff,
		randSrc:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// Digest summarizes [now-period, now] and delivers it. An empty window is
// skipped, not sent. Up to three attempts with doubling backoff; the final
// failure comes back as a NotifyError.
func (n *Notifier) Digest(ctx context.Context, period time.Duration) (Result, error) {
	if period <= 0 {
		period = 24 * time.Hour
	}
	to := n.now().UTC().Truncate(time.Second)
	from := to.Add(-period)

	agg, err := n.store.Aggregate(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("aggregate digest window: %w", err)
	}
	if agg.SampleCount == 0 {
		n.logger.Info("digest skipped, no samples in window",
			"from", from.Format(time.RFC3339), "to", to.Format(time.RFC3339))
		return Result{Transport: n.transport.Name(), Skipped: true}, nil
	}

	d := Digest{
		DeliveryID:  uuid.NewString(),
		GeneratedAt: to,
		Host:        n.host,
		PeriodHours: int(period.Hours()),
		Window:      model.Window{From: from, To: to},
		Aggregate:   agg,
		Subject:     fmt.Sprintf("SysPulse digest: %s", n.host),
	}
	d.Body = buildBody(d)

	name := n.transport.Name()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := n.transport.Send(ctx, d)
		if err == nil {
			if attempt > 1 {
				n.logger.Info("digest delivered after retry", "transport", name, "attempts", attempt)
			}
			return Result{
				DeliveryID: d.DeliveryID,
				Transport:  name,
				Attempts:   attempt,
				SentAt:     n.now().UTC(),
			}, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}

		wait := n.backoff<<(attempt-1) + n.jitter()
		n.logger.Warn("digest delivery failed",
			"transport", name, "attempt", attempt, "error", err, "retry_in", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Result{DeliveryID: d.DeliveryID, Transport: name, Attempts: attempt},
				&NotifyError{Transport: name, Err: ctx.Err()}
		case <-t.C:
		}
	}
	return Result{DeliveryID: d.DeliveryID, Transport: name, Attempts: maxAttempts},
		&NotifyError{Transport: name, Err: lastErr}
}

// jitter takes the lock because Digest may run concurrently from the digest
// ticker and an on-demand API call, and rand.Rand is not goroutine-safe.
func (n *Notifier) jitter() time.Duration {
	n.randMu.Lock()
	defer n.randMu.Unlock()
	return time.Duration(n.randSrc.Int63n(int64(maxJitter)))
}

func buildBody(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SysPulse digest for %s\n", d.Host)
	fmt.Fprintf(&b, "Window: %s to %s (%dh)\n",
		d.Window.From.Format(time.RFC3339), d.Window.To.Format(time.RFC3339), d.PeriodHours)
	fmt.Fprintf(&b, "Samples: %d\n\n", d.Aggregate.SampleCount)
	fmt.Fprintf(&b, "CPU %%:      avg %.1f  min %.1f  max %.1f\n",
		d.Aggregate.AvgCPU, d.Aggregate.MinCPU, d.Aggregate.MaxCPU)
	fmt.Fprintf(&b, "Memory %%:   avg %.1f  min %.1f  max %.1f\n",
		d.Aggregate.AvgMemory, d.Aggregate.MinMemory, d.Aggregate.MaxMemory)
	fmt.Fprintf(&b, "Disk %%:     avg %.1f  min %.1f  max %.1f\n",
		d.Aggregate.AvgDisk, d.Aggregate.MinDisk, d.Aggregate.MaxDisk)
	if d.Aggregate.AvgLatencyMS != nil {
		fmt.Fprintf(&b, "Latency ms: avg %.1f\n", *d.Aggregate.AvgLatencyMS)
	} else {
		fmt.Fprintln(&b, "Latency ms: no readings")
	}
	return b.String()
}

package notify

import (
	"context"
	"fmt"
	"time"

	"syspulse/internal/config"
	"syspulse/internal/model"
)

// Digest is everything a transport needs to deliver one summary: the
// prepared text for human channels and the structured fields for wire ones.
type Digest struct {
	DeliveryID  string
	GeneratedAt time.Time
	Host        string
	PeriodHours int
	Window      model.Window
	Aggregate   model.Aggregate
	Subject     string
	Body        string
}

// Envelope builds the wire framing for this digest.
func (d Digest) Envelope() model.Envelope {
	return model.Envelope{
		Source:      "syspulse",
		DeliveryID:  d.DeliveryID,
		GeneratedAt: d.GeneratedAt,
		PeriodHours: d.PeriodHours,
		Window:      d.Window,
		Host:        d.Host,
		Aggregate:   d.Aggregate,
	}
}

// Transport delivers one digest over a single channel.
type Transport interface {
	Name() string
	Send(ctx context.Context, d Digest) error
}

// NewTransportFromConfig selects the one configured delivery channel.
func NewTransportFromConfig(cfg config.Config) (Transport, error) {
	switch cfg.Notifications.Type {
	case config.NotifyEmail:
		return NewEmailTransport(cfg.Notifications), nil
	case config.NotifyWebhook:
		return NewWebhookTransport(cfg.Notifications.WebhookURL), nil
	default:
		return nil, fmt.Errorf("unknown notification type %q (want email or webhook)", cfg.Notifications.Type)
	}
}

package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"syspulse/internal/config"
)

// EmailTransport delivers digests over SMTP. TLS is opportunistic: STARTTLS
// when the server offers it, plaintext otherwise. Auth is used only when a
// username is configured.
type EmailTransport struct {
	host     string
	port     int
	user     string
	password string
	from     string
	to       string
}

func NewEmailTransport(cfg config.NotificationsConfig) *EmailTransport {
	return &EmailTransport{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     cfg.FromEmail,
		to:       cfg.ToEmail,
	}
}

func (t *EmailTransport) Name() string { return "email" }

func (t *EmailTransport) Send(ctx context.Context, d Digest) error {
	msg := mail.NewMsg()
	if err := msg.From(t.from); err != nil {
		return fmt.Errorf("set from address %q: %w", t.from, err)
	}
	if err := msg.To(t.to); err != nil {
		return fmt.Errorf("set to address %q: %w", t.to, err)
	}
	msg.Subject(d.Subject)
	msg.SetBodyString(mail.TypeTextPlain, d.Body)

	opts := []mail.Option{
		mail.WithPort(t.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if t.user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.user),
			mail.WithPassword(t.password),
		)
	}
	client, err := mail.NewClient(t.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client for %s: %w", t.host, err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email via %s: %w", t.host, err)
	}
	return nil
}

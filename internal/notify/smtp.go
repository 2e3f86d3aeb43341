package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"audiototext/internal/config"
)

var _ Transport = (*SMTPTransport)(nil)

// SMTPTransport sends notifications through an SMTP relay using STARTTLS
// when the server offers it. The configured timeout bounds dial, handshake,
// authentication and transmission together.
type SMTPTransport struct {
	cfg config.SMTPConfig
}

// NewSMTPTransport creates a transport from the SMTP configuration.
func NewSMTPTransport(cfg config.SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// Send builds a multipart message (plain-text body plus attachments) and
// attempts delivery exactly once.
func (t *SMTPTransport) Send(ctx context.Context, m *Message) error {
	msg := mail.NewMsg()
	if err := msg.From(t.cfg.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	for _, a := range m.Attachments {
		if err := msg.AttachReader(a.Name, bytes.NewReader(a.Payload),
			mail.WithFileContentType(mail.ContentType(a.MediaType))); err != nil {
			return fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}

	opts := []mail.Option{
		mail.WithPort(t.cfg.Port),
		mail.WithTimeout(t.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if t.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}
	client, err := mail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type SMTPTransport struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
	enabled  bool
}

// NewSMTP builds an authenticated SMTP transport. Without a host, sender or
// credentials it stays disabled and every Send returns ErrDisabled.
func NewSMTP(host string, port int, user, pass, fromName, from string) *SMTPTransport {
	return &SMTPTransport{
		dialer:   gomail.NewDialer(host, port, user, pass),
		from:     from,
		fromName: fromName,
		enabled:  host != "" && from != "" && user != "" && pass != "",
	}
}

// Send blocks until the SMTP exchange finishes or ctx is done. gomail has no
// context support, so an abandoned exchange finishes in the background.
func (s *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if !s.enabled {
		return ErrDisabled
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kinna/kinna-backend/pkg/config"
	"github.com/kinna/kinna-backend/pkg/logger"
)

// ErrDisabled is returned by transports that are missing credentials.
var ErrDisabled = errors.New("mailer disabled")

type Service interface {
	SendVerification(ctx context.Context, toEmail, code, username string) error
	SendWelcome(ctx context.Context, toEmail, username string) error
}

type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers one rendered message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer renders Kinna's messages and hands them to a transport.
type Mailer struct {
	transport Transport
}

func New(t Transport) *Mailer {
	return &Mailer{transport: t}
}

func (m *Mailer) SendVerification(ctx context.Context, toEmail, code, username string) error {
	return m.transport.Send(ctx, verificationMessage(toEmail, code, username))
}

func (m *Mailer) SendWelcome(ctx context.Context, toEmail, username string) error {
	return m.transport.Send(ctx, welcomeMessage(toEmail, username))
}

// NewTransport picks the transport named by cfg.Driver.
func NewTransport(cfg config.EmailConfig) (Transport, error) {
	switch cfg.Driver {
	case "smtp":
		t := NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.FromName, cfg.From)
		if !t.enabled {
			logger.Warn("SMTP selected but SMTP_HOST, SMTP_USER or SMTP_PASS is empty; emails will not be sent")
		}
		return t, nil
	case "mailersend":
		t := NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.From)
		if !t.enabled {
			logger.Warn("MailerSend selected but MAILERSEND_API_KEY is empty; emails will not be sent")
		}
		return t, nil
	case "dev", "":
		return NewDev(), nil
	default:
		return nil, fmt.Errorf("unknown email driver %q", cfg.Driver)
	}
}

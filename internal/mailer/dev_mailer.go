package mailer

import (
	"context"
	"sync"

	"github.com/kinna/kinna-backend/pkg/logger"
)

// DevTransport logs messages instead of delivering them and keeps the last
// few in memory.
type DevTransport struct {
	mu   sync.Mutex
	sent []Message
}

const devKeep = 50

func NewDev() *DevTransport {
	return &DevTransport{}
}

func (d *DevTransport) Send(ctx context.Context, msg Message) error {
	logger.InfoContext(ctx, "[DEV MAIL] email not delivered",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text,
	)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	if len(d.sent) > devKeep {
		d.sent = d.sent[len(d.sent)-devKeep:]
	}
	return nil
}

// Sent returns a copy of the retained messages, oldest first.
func (d *DevTransport) Sent() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.sent...)
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kinna/kinna-backend/pkg/logger"
)

const (
	SubjectUserRegistered = "user.registered"
	SubjectUserVerified   = "user.verified"
	SubjectUserFollowed   = "user.followed"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}

// Envelope wraps every payload put on the bus.
type Envelope struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type UserRegistered struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type UserVerified struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

type UserFollowed struct {
	FollowerID  uuid.UUID `json:"follower_id"`
	FollowingID uuid.UUID `json:"following_id"`
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("kinna-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (n *NATSPublisher) Publish(ctx context.Context, subject string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encode(subject, data, time.Now().UTC())
	if err != nil {
		return err
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject)
	return n.conn.Publish(subject, payload)
}

func (n *NATSPublisher) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

func encode(subject string, data any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: at,
		Data:       raw,
	})
}

// NopPublisher drops every event. Used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                               { return nil }

package mailer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinna/kinna-backend/pkg/config"
)

func TestVerificationMessage(t *testing.T) {
	dev := NewDev()
	m := New(dev)

	require.NoError(t, m.SendVerification(context.Background(), "alice@example.com", "482913", "alice"))

	sent := dev.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@example.com", sent[0].To)
	assert.Equal(t, "Verify Your Kinna Account", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "482913")
	assert.Contains(t, sent[0].Text, "This code will expire in 15 minutes.")
	assert.Contains(t, sent[0].HTML, "482913")
}

func TestWelcomeMessageEscapesHTML(t *testing.T) {
	dev := NewDev()
	require.NoError(t, New(dev).SendWelcome(context.Background(), "bob@example.com", "<b>ob"))

	sent := dev.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Welcome to Kinna, <b>ob!")
	assert.Contains(t, sent[0].HTML, "&lt;b&gt;ob")
}

func TestDevTransportKeepsRecentMessages(t *testing.T) {
	dev := NewDev()
	for i := 0; i < devKeep+5; i++ {
		require.NoError(t, dev.Send(context.Background(), Message{To: "x@example.com"}))
	}
	assert.Len(t, dev.Sent(), devKeep)
}

func TestUnconfiguredTransportsAreDisabled(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, NewMailerSend("", "Kinna", "noreply@kinna.app").Send(ctx, Message{}), ErrDisabled)
	assert.ErrorIs(t, NewSMTP("", 25, "", "", "Kinna", "noreply@kinna.app").Send(ctx, Message{}), ErrDisabled)
}

func TestSMTPWithoutCredentialsIsDisabled(t *testing.T) {
	ctx := context.Background()
	defaults := config.Load().Email

	tr, err := NewTransport(config.EmailConfig{
		Driver:   "smtp",
		SMTPHost: defaults.SMTPHost,
		SMTPPort: defaults.SMTPPort,
		From:     defaults.From,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Send(ctx, Message{To: "alice@example.com"}), ErrDisabled)

	assert.ErrorIs(t, NewSMTP("smtp.example.com", 587, "mailer", "", "Kinna", "noreply@kinna.app").Send(ctx, Message{}), ErrDisabled)
	assert.ErrorIs(t, NewSMTP("smtp.example.com", 587, "", "secret", "Kinna", "noreply@kinna.app").Send(ctx, Message{}), ErrDisabled)
}

func TestSMTPSendHonorsContext(t *testing.T) {
	// 192.0.2.0/24 is reserved for documentation and never answers.
	s := NewSMTP("192.0.2.1", 25, "mailer", "secret", "Kinna", "noreply@kinna.app")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Send(ctx, Message{To: "alice@example.com", Subject: "hi", Text: "hi"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewTransport(t *testing.T) {
	tr, err := NewTransport(config.EmailConfig{Driver: "dev"})
	require.NoError(t, err)
	assert.IsType(t, &DevTransport{}, tr)

	tr, err = NewTransport(config.EmailConfig{Driver: "smtp", SMTPHost: "localhost", SMTPPort: 1025, From: "a@b.c"})
	require.NoError(t, err)
	assert.IsType(t, &SMTPTransport{}, tr)

	tr, err = NewTransport(config.EmailConfig{Driver: "mailersend", MailerSendKey: "key", From: "a@b.c"})
	require.NoError(t, err)
	assert.IsType(t, &MailerSendTransport{}, tr)

	_, err = NewTransport(config.EmailConfig{Driver: "fax"})
	assert.Error(t, err)
}

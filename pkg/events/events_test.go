package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWrapsPayloadInEnvelope(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()

	b, err := encode(SubjectUserVerified, UserVerified{UserID: id, Email: "alice@example.com"}, at)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, SubjectUserVerified, env.Subject)
	assert.True(t, env.OccurredAt.Equal(at))
	assert.NotEmpty(t, env.ID)

	var got UserVerified
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, id, got.UserID)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestEncodeRejectsUnmarshalablePayload(t *testing.T) {
	_, err := encode("x", make(chan int), time.Now())
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), SubjectUserRegistered, nil))
	assert.NoError(t, p.Close())
}

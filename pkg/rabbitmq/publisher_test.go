package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	msg, err := newMessage(map[string]any{"kind": "waitlisted", "event_id": 3}, now)
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.NotEmpty(t, msg.MessageId)
	assert.Equal(t, time.UTC, msg.Timestamp.Location())

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "waitlisted", body["kind"])
}

func TestNewMessageRejectsUnencodable(t *testing.T) {
	_, err := newMessage(make(chan int), time.Now())
	assert.Error(t, err)
}

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNilBus(t *testing.T) {
	var b *Bus

	err := b.Publish(context.Background(), "jobchat.messages.created", map[string]int{"id": 1})
	require.ErrorIs(t, err, ErrNilBus)
	require.NotPanics(t, b.Close)
}

func TestPublishRejectsUnencodableEvent(t *testing.T) {
	b := &Bus{}

	err := b.Publish(context.Background(), "jobchat.messages.created", make(chan int))
	require.Error(t, err)
	require.Contains(t, err.Error(), "encode jobchat.messages.created event")
}

func TestNewUnreachableServer(t *testing.T) {
	_, err := New("nats://127.0.0.1:1", zerolog.Nop(), nats.Timeout(200*time.Millisecond))
	require.Error(t, err)
	require.Contains(t, err.Error(), "connect nats")
}

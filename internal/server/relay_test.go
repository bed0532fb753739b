package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/jobchat/internal/store"
)

// TestRelayPersistsBeforePush verifies that no socket has been pushed to at
// the moment the message is written.
func TestRelayPersistsBeforePush(t *testing.T) {
	hub := newTestHub(t, ClientLimits{})
	sender := hub.connect(t, 1)
	receiver := hub.connect(t, 2)

	var queuedAtPersist []int
	hub.messages.onCreate = func(store.Message) {
		queuedAtPersist = append(queuedAtPersist, len(sender.send), len(receiver.send))
	}

	msg, err := hub.Relay(context.Background(), 1, 2, "hi")
	require.NoError(t, err)
	require.Equal(t, []int{0, 0}, queuedAtPersist)
	require.Equal(t, 1, hub.messages.count())
	require.False(t, msg.Read)
	require.False(t, msg.CreatedAt.IsZero())

	require.Equal(t, "message", receive(t, receiver)["type"])
	require.Equal(t, "message_sent", receive(t, sender)["type"])
}

func TestRelayDeliversAndConfirms(t *testing.T) {
	hub := newTestHub(t, ClientLimits{})
	sender := hub.connect(t, 1)
	receiver := hub.connect(t, 2)

	msg, err := hub.Relay(context.Background(), 1, 2, "hi")
	require.NoError(t, err)

	got := receive(t, receiver)
	require.Equal(t, map[string]any{
		"type": "message",
		"message": map[string]any{
			"id":         float64(msg.ID),
			"senderId":   float64(1),
			"receiverId": float64(2),
			"content":    "hi",
			"read":       false,
			"createdAt":  "2026-01-02T03:04:05Z",
		},
	}, got)

	require.Equal(t, map[string]any{"type": "message_sent", "messageId": float64(msg.ID)}, receive(t, sender))
	requireIdle(t, sender)
	requireIdle(t, receiver)

	require.Equal(t, []string{SubjectMessageCreated}, hub.bus.subjects())
}

func TestRelayToOfflineRecipientStillConfirms(t *testing.T) {
	hub := newTestHub(t, ClientLimits{})
	sender := hub.connect(t, 1)
	bystander := hub.connect(t, 3)

	msg, err := hub.Relay(context.Background(), 1, 2, "are you there?")
	require.NoError(t, err)
	require.NotZero(t, msg.ID)
	require.Equal(t, 1, hub.messages.count())

	require.Equal(t, "message_sent", receive(t, sender)["type"])
	requireIdle(t, sender)
	requireIdle(t, bystander)
}

// TestRelayFansOutToEverySession verifies that every live socket of the
// receiver gets the same bytes.
func TestRelayFansOutToEverySession(t *testing.T) {
	hub := newTestHub(t, ClientLimits{})
	senderTabs := []*Client{hub.connect(t, 1), hub.connect(t, 1)}
	receiverTabs := []*Client{hub.connect(t, 2), hub.connect(t, 2), hub.connect(t, 2)}

	_, err := hub.Relay(context.Background(), 1, 2, "hello everywhere")
	require.NoError(t, err)

	var frames [][]byte
	for _, c := range receiverTabs {
		frames = append(frames, <-c.GetSendChan())
	}
	for _, frame := range frames[1:] {
		require.Equal(t, string(frames[0]), string(frame))
	}
	for _, c := range senderTabs {
		require.Equal(t, "message_sent", receive(t, c)["type"])
	}
}

func TestRelayStorageFailure(t *testing.T) {
	hub := newTestHub(t, ClientLimits{})
	sender := hub.connect(t, 1)
	receiver := hub.connect(t, 2)
	hub.messages.fail = true

	_, err := hub.Relay(context.Background(), 1, 2, "lost")
	require.ErrorIs(t, err, ErrStorageFailure)
	require.ErrorIs(t, err, errDatabaseDown)

	requireIdle(t, sender)
	requireIdle(t, receiver)
	require.Empty(t, hub.bus.subjects())
}

// TestRelayIgnoresBusErrors verifies that a failing event bus never fails
// the relay.
func TestRelayIgnoresBusErrors(t *testing.T) {
	hub := newTestHub(t, ClientLimits{})
	sender := hub.connect(t, 1)
	hub.bus.err = context.DeadlineExceeded

	_, err := hub.Relay(context.Background(), 1, 2, "still fine")
	require.NoError(t, err)
	require.Equal(t, "message_sent", receive(t, sender)["type"])
}

func TestNotifyReportsDelivery(t *testing.T) {
	hub := newTestHub(t, ClientLimits{})
	require.False(t, hub.Notify(9, ErrorEvent{Message: "nobody home"}))

	c := hub.connect(t, 9)
	require.True(t, hub.Notify(9, ErrorEvent{Message: "hello"}))
	require.Equal(t, map[string]any{"type": "error", "message": "hello"}, receive(t, c))
}

package server

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/jobchat/internal/auth"
)

func socketIDs(hub *Hub, userID int64) []uuid.UUID {
	return lo.Map(hub.Sockets(userID), func(c *Client, _ int) uuid.UUID { return c.ID() })
}

func identityFor(userID int64) auth.Identity {
	return auth.Identity{ID: userID, Email: "user@example.com", Role: "candidate"}
}

// receive returns the next queued frame for c, or fails after one second.
func receive(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case raw, ok := <-c.GetSendChan():
		require.True(t, ok, "send channel closed")
		var frame map[string]any
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func requireIdle(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.GetSendChan():
		t.Fatalf("unexpected frame %s", raw)
	default:
	}
}

func TestRegisterKeepsEverySession(t *testing.T) {
	hub := newTestHub(t, ClientLimits{})

	first := hub.connect(t, 2)
	second := hub.connect(t, 2)
	other := hub.connect(t, 3)

	require.ElementsMatch(t, []uuid.UUID{first.ID(), second.ID()}, socketIDs(hub.Hub, 2))
	require.Equal(t, []uuid.UUID{other.ID()}, socketIDs(hub.Hub, 3))
	require.Equal(t, 3, hub.SessionCount())
	require.NotEqual(t, first.ID(), second.ID())
}

func TestClientLoggerCarriesSessionFields(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHub(Options{Logger: zerolog.New(&buf)})

	client := NewClient(nil, hub, auth.Identity{ID: 7, Role: "recruiter"}, "10.0.0.1:5000")
	client.log.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, client.ID().String(), line["session"])
	require.Equal(t, float64(7), line["user_id"])
	require.Equal(t, "recruiter", line["role"])
	require.Equal(t, "10.0.0.1:5000", line["remote_addr"])
}

// TestUnregisterRemovesOnlyThatSocket verifies that closing one tab leaves
// the user's other sessions registered.
func TestUnregisterRemovesOnlyThatSocket(t *testing.T) {
	hub := newTestHub(t, ClientLimits{})

	first := hub.connect(t, 2)
	second := hub.connect(t, 2)

	hub.unregisterClient(first)
	require.Eventually(t, func() bool { return len(hub.Sockets(2)) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []uuid.UUID{second.ID()}, socketIDs(hub.Hub, 2))

	// A second removal of the same socket is a no-op.
	hub.unregisterClient(first)
	require.Equal(t, []uuid.UUID{second.ID()}, socketIDs(hub.Hub, 2))

	hub.unregisterClient(second)
	require.Eventually(t, func() bool { return hub.SessionCount() == 0 }, time.Second, 5*time.Millisecond)
	require.Empty(t, hub.Sockets(2))
}

func TestPushToFullBufferDropsSocket(t *testing.T) {
	hub := newTestHub(t, ClientLimits{SendBufferSize: 1})
	slow := hub.connect(t, 2)

	require.True(t, hub.push(slow, []byte(`{"type":"error","message":"one"}`)))
	require.False(t, hub.push(slow, []byte(`{"type":"error","message":"two"}`)))

	require.Eventually(t, func() bool { return len(hub.Sockets(2)) == 0 }, time.Second, 5*time.Millisecond)
	require.False(t, hub.push(slow, []byte(`{}`)), "a removed socket accepts nothing")
}

func TestShutdownClearsRegistry(t *testing.T) {
	hub := newTestHub(t, ClientLimits{})
	a := hub.connect(t, 1)
	b := hub.connect(t, 2)

	require.NoError(t, hub.Shutdown(time.Second))
	require.False(t, hub.Running())
	require.Zero(t, hub.SessionCount())

	for _, c := range []*Client{a, b} {
		_, ok := <-c.GetSendChan()
		require.False(t, ok, "send channel is closed on shutdown")
	}

	late := NewClient(nil, hub.Hub, identityFor(3), "late")
	done := make(chan struct{})
	go func() {
		hub.Register(late)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Register blocked after shutdown")
	}
	require.Empty(t, hub.Sockets(3))
}

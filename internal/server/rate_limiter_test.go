package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	rl := newRateLimiterWithClock(3, time.Second, clock)

	for i := 0; i < 3; i++ {
		require.True(t, rl.allow(), "frame %d within burst", i)
	}
	require.False(t, rl.allow())

	now = now.Add(400 * time.Millisecond)
	require.True(t, rl.allow(), "one token refilled after a third of the interval")
	require.False(t, rl.allow())

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		require.True(t, rl.allow())
	}
	require.False(t, rl.allow(), "refill never exceeds the burst")
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := newRateLimiter(0, 0)
	require.True(t, rl.allow())
	require.False(t, rl.allow())
}

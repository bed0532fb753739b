// Package server coordinates socket registration, targeted delivery, and
// connection cleanup for the jobchat WebSocket layer via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Tyrowin/jobchat/internal/config"
	"github.com/Tyrowin/jobchat/internal/store"
)

// MessageStore persists chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (store.Message, error)
}

// InvitationReader reads the records an invitation notification is built from.
type InvitationReader interface {
	GetInvitation(ctx context.Context, id int64) (store.Invitation, error)
	GetJob(ctx context.Context, id int64) (store.Job, error)
	GetCompany(ctx context.Context, id int64) (store.Company, error)
	GetCandidateProfile(ctx context.Context, id int64) (store.CandidateProfile, error)
}

// Publisher forwards domain events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// ClientLimits bounds what a single socket may send and buffer.
type ClientLimits struct {
	MaxMessageSize int64
	SendBufferSize int
	RateLimit      config.RateLimitConfig
}

// Options configures a Hub.
type Options struct {
	Messages    MessageStore
	Invitations InvitationReader
	Bus         Publisher
	Metrics     *Metrics
	Logger      zerolog.Logger
	Limits      ClientLimits
}

// Hub owns the registry of live sockets. Registration and removal happen only
// on the Run goroutine; other goroutines read snapshots through Sockets.
type Hub struct {
	sessions    map[int64]map[*Client]struct{}
	register    chan *Client
	unregister  chan *Client
	mutex       sync.RWMutex
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	messages    MessageStore
	invitations InvitationReader
	bus         Publisher
	metrics     *Metrics
	log         zerolog.Logger
	limits      ClientLimits
}

// NewHub creates a Hub ready to be started with Run.
func NewHub(opts Options) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	limits := opts.Limits
	if limits.MaxMessageSize <= 0 {
		limits.MaxMessageSize = 4096
	}
	if limits.SendBufferSize <= 0 {
		limits.SendBufferSize = 256
	}
	if limits.RateLimit.Burst <= 0 {
		limits.RateLimit.Burst = 5
	}
	if limits.RateLimit.RefillInterval <= 0 {
		limits.RateLimit.RefillInterval = time.Second
	}
	return &Hub{
		sessions:    make(map[int64]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		messages:    opts.Messages,
		invitations: opts.Invitations,
		bus:         opts.Bus,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		limits:      limits,
	}
}

// Register hands an authenticated client to the hub. It blocks until the Run
// loop accepts it, or closes the client if the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeConnection()
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Sockets returns a snapshot of the live sockets owned by userID. An entry
// may close between the snapshot and a later push.
func (h *Hub) Sockets(userID int64) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return lo.Keys(h.sessions[userID])
}

// SessionCount returns the total number of registered sockets.
func (h *Hub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return lo.SumBy(lo.Values(h.sessions), func(set map[*Client]struct{}) int { return len(set) })
}

// Running reports whether the Run loop is still accepting clients.
func (h *Hub) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return h.ctx.Err() == nil
	}
}

// push queues payload on a client's send buffer without blocking. A client
// whose buffer is full is treated as failed and dropped.
func (h *Hub) push(client *Client, payload []byte) bool {
	h.mutex.RLock()
	_, registered := h.sessions[client.userID][client]
	if !registered || client.closed {
		h.mutex.RUnlock()
		return false
	}
	select {
	case client.send <- payload:
		h.mutex.RUnlock()
		return true
	default:
		h.mutex.RUnlock()
	}

	client.log.Warn().Msg("Send buffer full; dropping socket")
	go h.unregisterClient(client)
	client.closeConnection()
	return false
}

// Run starts the hub's main event loop, handling client registration and
// removal. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn().Msg("Received nil client registration; skipping")
				continue
			}
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mutex.Lock()
	set, ok := h.sessions[client.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.sessions[client.userID] = set
	}
	set[client] = struct{}{}
	userSessions := len(set)
	h.mutex.Unlock()

	h.metrics.sessionsActive.Inc()
	client.log.Info().Int("user_sessions", userSessions).Msg("Client registered")

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// remove deletes the exact (user, socket) pair; other sockets of the same
// user stay registered.
func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	set, ok := h.sessions[client.userID]
	if _, exists := set[client]; !ok || !exists {
		h.mutex.Unlock()
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.sessions, client.userID)
	}
	client.closed = true
	close(client.send)
	remaining := len(set)
	h.mutex.Unlock()

	h.metrics.sessionsActive.Dec()
	client.log.Info().Int("user_sessions", remaining).Msg("Client unregistered")
}

// shutdownClients empties the registry and closes every send channel; each
// write pump then sends a close frame and closes its connection.
func (h *Hub) shutdownClients() {
	h.log.Info().Msg("Shutting down all client connections...")

	h.mutex.Lock()
	closed := 0
	for _, set := range h.sessions {
		for client := range set {
			client.closed = true
			close(client.send)
			closed++
		}
	}
	h.sessions = make(map[int64]map[*Client]struct{})
	h.mutex.Unlock()

	h.metrics.sessionsActive.Sub(float64(closed))
	h.log.Info().Int("closed", closed).Msg("Closed client connections")
}

// Shutdown stops the Run loop and waits for every pump goroutine to finish,
// or until timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/jobchat/internal/auth"
	"github.com/Tyrowin/jobchat/internal/config"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client is one authenticated socket. A user may own any number of them.
type Client struct {
	id             uuid.UUID
	userID         int64
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      config.RateLimitConfig
	log            zerolog.Logger
}

// NewClient creates a Client for an already verified identity. The client's
// send channel is buffered to handle message queuing.
func NewClient(conn *websocket.Conn, hub *Hub, identity auth.Identity, addr string) *Client {
	limits := hub.limits
	if conn != nil {
		conn.SetReadLimit(limits.MaxMessageSize)
	}
	id := uuid.New()

	return &Client{
		id:             id,
		userID:         identity.ID,
		conn:           conn,
		send:           make(chan []byte, limits.SendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: limits.MaxMessageSize,
		rateLimiter:    newRateLimiter(limits.RateLimit.Burst, limits.RateLimit.RefillInterval),
		rateLimit:      limits.RateLimit,
		log: hub.log.With().
			Str("session", id.String()).
			Int64("user_id", identity.ID).
			Str("role", identity.Role).
			Str("remote_addr", addr).
			Logger(),
	}
}

// ID returns the socket's unique id.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// UserID returns the id of the user that owns the socket.
func (c *Client) UserID() int64 {
	return c.userID
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error().Err(err).Msg("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Error().Err(err).Msg("Error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the read failure and reports whether the read loop
// should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("Message exceeded maximum size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info().Err(err).Msg("Client disconnected")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info().Err(err).Msg("Client connection closed")
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.Warn().Err(err).Msg("Unexpected WebSocket error")
		return true
	}

	c.log.Error().Err(err).Msg("WebSocket read error")
	return true
}

func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("refill", c.rateLimit.RefillInterval).
			Msg("Rate limit exceeded; discarding frame")
		c.reply(ErrorEvent{Message: "rate limit exceeded"})
		return false
	}
	return true
}

// processMessage validates one inbound frame and relays it. Rejections are
// reported to the sending socket only.
func (c *Client) processMessage(raw []byte) bool {
	frame, err := ParseChatFrame(raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("Rejected inbound frame")
		c.reply(ErrorEvent{Message: err.Error()})
		return false
	}

	if _, err := c.hub.Relay(c.hub.ctx, c.userID, frame.ReceiverID, frame.Content); err != nil {
		c.reply(ErrorEvent{Message: "failed to send message"})
		return false
	}
	return true
}

// reply pushes an event to this socket alone.
func (c *Client) reply(e Event) {
	payload, err := EncodeEvent(e)
	if err != nil {
		c.log.Error().Err(err).Msg("Error encoding reply")
		return
	}
	outcome := outcomeDelivered
	if !c.hub.push(c, payload) {
		outcome = outcomeDropped
	}
	c.hub.metrics.pushes.WithLabelValues(string(e.Type()), outcome).Inc()
}

func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("Recovered panic in readPump")
		}
		c.hub.unregisterClient(c)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Error().Err(err).Msg("Error closing connection")
	}
}

// handleMessage writes one outgoing event and returns false if the connection
// should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error().Err(err).Msg("Error setting write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Error().Err(err).Msg("Error writing message")
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() bool {
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
	if err != nil && !isExpectedCloseError(err) {
		c.log.Error().Err(err).Msg("Error writing close message")
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error().Err(err).Msg("Error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Error().Err(err).Msg("Error writing ping message")
		return false
	}
	return true
}

package server

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Tyrowin/jobchat/internal/store"
)

const (
	// SubjectMessageCreated carries every persisted chat message.
	SubjectMessageCreated = "jobchat.messages.created"
	// SubjectInvitationNotified carries the outcome of each invitation notification.
	SubjectInvitationNotified = "jobchat.invitations.notified"
)

const (
	outcomeDelivered = "delivered"
	outcomeDropped   = "dropped"
	outcomeOffline   = "offline"
	outcomeAborted   = "aborted"
)

var tracer = otel.Tracer("github.com/Tyrowin/jobchat/internal/server")

// Relay persists a chat message and then pushes it to the receiver's live
// sockets, followed by a confirmation to the sender's live sockets. Nothing is
// pushed unless persistence succeeds; push failures never fail the relay.
func (h *Hub) Relay(ctx context.Context, senderID, receiverID int64, content string) (store.Message, error) {
	ctx, span := tracer.Start(ctx, "server.Relay")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("jobchat.sender_id", senderID),
		attribute.Int64("jobchat.receiver_id", receiverID),
	)

	msg, err := h.messages.CreateMessage(ctx, senderID, receiverID, content)
	if err != nil {
		h.metrics.relayFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist message")
		h.log.Error().Err(err).
			Int64("sender_id", senderID).
			Int64("receiver_id", receiverID).
			Msg("Failed to persist message")
		return store.Message{}, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	h.metrics.messagesRelayed.Inc()
	span.SetAttributes(attribute.Int64("jobchat.message_id", msg.ID))

	delivered := h.Notify(receiverID, MessageEvent{Message: msg})
	h.Notify(senderID, MessageSentEvent{MessageID: msg.ID})

	h.log.Debug().
		Int64("message_id", msg.ID).
		Int64("sender_id", senderID).
		Int64("receiver_id", receiverID).
		Bool("receiver_online", delivered).
		Msg("Message relayed")

	h.publish(ctx, SubjectMessageCreated, msg)
	return msg, nil
}

// Notify pushes e to every live socket owned by userID and reports whether at
// least one socket accepted it. An offline user is not an error.
func (h *Hub) Notify(userID int64, e Event) bool {
	sockets := h.Sockets(userID)
	if len(sockets) == 0 {
		return false
	}

	payload, err := EncodeEvent(e)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(e.Type())).Msg("Error encoding event")
		return false
	}

	delivered := 0
	for _, client := range sockets {
		outcome := outcomeDelivered
		if h.push(client, payload) {
			delivered++
		} else {
			outcome = outcomeDropped
			client.log.Warn().Str("event", string(e.Type())).Msg("Push failed; socket skipped")
		}
		h.metrics.pushes.WithLabelValues(string(e.Type()), outcome).Inc()
	}
	return delivered > 0
}

func (h *Hub) publish(ctx context.Context, subject string, v any) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(ctx, subject, v); err != nil {
		h.log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}

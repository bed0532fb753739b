// Package server defines the wire events exchanged over a socket and the
// helpers that encode outbound events and validate inbound frames.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/jobchat/internal/store"
)

var (
	// ErrMalformedPayload is returned for inbound frames that are not valid
	// JSON or lack a receiver or content.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrStorageFailure is returned when a message could not be persisted.
	ErrStorageFailure = errors.New("storage failure")
)

var validate = validator.New()

// EventType is the discriminator carried in the "type" field of every frame.
type EventType string

const (
	EventMessage       EventType = "message"
	EventMessageSent   EventType = "message_sent"
	EventError         EventType = "error"
	EventNewInvitation EventType = "new_invitation"
)

// Event is a server-to-client frame. The set of implementations is closed:
// MessageEvent, MessageSentEvent, ErrorEvent and InvitationEvent.
type Event interface {
	Type() EventType
	isEvent()
}

// MessageEvent delivers a persisted message to its receiver.
type MessageEvent struct {
	Message store.Message
}

// MessageSentEvent confirms to the sender that a message was persisted.
type MessageSentEvent struct {
	MessageID int64
}

// ErrorEvent tells the sender that a frame was rejected or could not be saved.
type ErrorEvent struct {
	Message string
}

// InvitationEvent notifies a candidate about a new invitation.
type InvitationEvent struct {
	Invitation InvitationPayload
}

// InvitationPayload is an invitation together with its job and company.
type InvitationPayload struct {
	store.Invitation
	Job JobPayload `json:"job"`
}

// JobPayload is a job together with the company that posted it.
type JobPayload struct {
	store.Job
	Company store.Company `json:"company"`
}

func (MessageEvent) Type() EventType     { return EventMessage }
func (MessageSentEvent) Type() EventType { return EventMessageSent }
func (ErrorEvent) Type() EventType       { return EventError }
func (InvitationEvent) Type() EventType  { return EventNewInvitation }

func (MessageEvent) isEvent()     {}
func (MessageSentEvent) isEvent() {}
func (ErrorEvent) isEvent()       {}
func (InvitationEvent) isEvent()  {}

type messageFrame struct {
	Type    EventType     `json:"type"`
	Message store.Message `json:"message"`
}

type messageSentFrame struct {
	Type      EventType `json:"type"`
	MessageID int64     `json:"messageId"`
}

type errorFrame struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

type invitationFrame struct {
	Type       EventType         `json:"type"`
	Invitation InvitationPayload `json:"invitation"`
}

// EncodeEvent renders an event as a single JSON text frame.
func EncodeEvent(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case MessageEvent:
		return json.Marshal(messageFrame{Type: EventMessage, Message: ev.Message})
	case MessageSentEvent:
		return json.Marshal(messageSentFrame{Type: EventMessageSent, MessageID: ev.MessageID})
	case ErrorEvent:
		return json.Marshal(errorFrame{Type: EventError, Message: ev.Message})
	case InvitationEvent:
		return json.Marshal(invitationFrame{Type: EventNewInvitation, Invitation: ev.Invitation})
	default:
		return nil, fmt.Errorf("unknown event %T", e)
	}
}

// ChatFrame is the only frame a client may send.
type ChatFrame struct {
	Type       EventType `json:"type" validate:"required,eq=message"`
	ReceiverID int64     `json:"receiverId" validate:"required,gt=0"`
	Content    string    `json:"content" validate:"required"`
}

// ParseChatFrame decodes and validates an inbound frame.
func ParseChatFrame(raw []byte) (ChatFrame, error) {
	var frame ChatFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return ChatFrame{}, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}
	if err := validate.Struct(frame); err != nil {
		return ChatFrame{}, fmt.Errorf("%w: %s", ErrMalformedPayload, describeValidation(err))
	}
	if strings.TrimSpace(frame.Content) == "" {
		return ChatFrame{}, fmt.Errorf("%w: content is empty", ErrMalformedPayload)
	}
	return frame, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Type":
		return "unsupported event type"
	case "ReceiverID":
		return "receiverId is required"
	case "Content":
		return "content is required"
	default:
		return fe.Error()
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

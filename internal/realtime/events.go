// ABOUTME: Events pushed to realtime connections and the JSON envelope they travel in
// ABOUTME: Also defines the message payload shape shared with the JSON API

package realtime

import (
	"time"

	"github.com/2389/heartline-gateway/internal/store"
)

// EventType names an event on the wire.
type EventType string

// Server to client events.
const (
	EventThreadLoaded    EventType = "ReceiveMessageThread"
	EventMessage         EventType = "NewMessage"
	EventMessageReceived EventType = "NewMessageReceived"
	EventUserOnline      EventType = "UserOnline"
	EventUserOffline     EventType = "UserOffline"
	EventOnlineUsers     EventType = "GetOnlineUsers"
	EventSendRejected    EventType = "SendRejected"
	EventError           EventType = "Error"
)

// Client to server events.
const (
	EventSendMessage EventType = "SendMessage"
)

// Event is one frame pushed to a connection.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// MessageDTO is the client view of a message.
type MessageDTO struct {
	ID                   string     `json:"id"`
	SenderID             string     `json:"senderId"`
	SenderDisplayName    string     `json:"senderDisplayName"`
	SenderImageURL       string     `json:"senderImageUrl,omitempty"`
	RecipientID          string     `json:"recipientId"`
	RecipientDisplayName string     `json:"recipientDisplayName"`
	RecipientImageURL    string     `json:"recipientImageUrl,omitempty"`
	Content              string     `json:"content"`
	SentAt               time.Time  `json:"sentAt"`
	ReadAt               *time.Time `json:"readAt"`
}

// NewMessageDTO converts a stored message.
func NewMessageDTO(m *store.Message) MessageDTO {
	return MessageDTO{
		ID:                   m.ID,
		SenderID:             m.SenderID,
		SenderDisplayName:    m.SenderDisplayName,
		SenderImageURL:       m.SenderImageURL,
		RecipientID:          m.RecipientID,
		RecipientDisplayName: m.RecipientDisplayName,
		RecipientImageURL:    m.RecipientImageURL,
		Content:              m.Content,
		SentAt:               m.SentAt,
		ReadAt:               m.ReadAt,
	}
}

// NewMessageDTOs converts a slice of stored messages. The result is never nil.
func NewMessageDTOs(msgs []*store.Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessageDTO(m))
	}
	return out
}

// SendMessageRequest is the payload of a SendMessage frame.
type SendMessageRequest struct {
	RecipientID     string `json:"recipientId"`
	Content         string `json:"content"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// SendRejection is the payload of a SendRejected frame.
type SendRejection struct {
	ClientMessageID string `json:"clientMessageId,omitempty"`
	Reason          string `json:"reason"`
	Error           string `json:"error"`
}

// ErrorPayload is the payload of an Error frame.
type ErrorPayload struct {
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// ThreadLoaded carries the thread replayed to a connection that just joined.
func ThreadLoaded(msgs []*store.Message) Event {
	return Event{Type: EventThreadLoaded, Data: NewMessageDTOs(msgs)}
}

// MessageBroadcast carries a new message to the conversation's connections.
func MessageBroadcast(m *store.Message) Event {
	return Event{Type: EventMessage, Data: NewMessageDTO(m)}
}

// MessageNotification tells a recipient viewing something else about a new message.
func MessageNotification(m *store.Message) Event {
	return Event{Type: EventMessageReceived, Data: NewMessageDTO(m)}
}

// PresenceOnline announces that a member came online.
func PresenceOnline(memberID string) Event {
	return Event{Type: EventUserOnline, Data: memberID}
}

// PresenceOffline announces that a member went offline.
func PresenceOffline(memberID string) Event {
	return Event{Type: EventUserOffline, Data: memberID}
}

// OnlineMembersSnapshot lists every online member.
func OnlineMembersSnapshot(memberIDs []string) Event {
	if memberIDs == nil {
		memberIDs = []string{}
	}
	return Event{Type: EventOnlineUsers, Data: memberIDs}
}

// SendRejected reports a rejected send back to its sender.
func SendRejected(clientMessageID string, err error) Event {
	return Event{Type: EventSendRejected, Data: SendRejection{
		ClientMessageID: clientMessageID,
		Reason:          Reason(err),
		Error:           err.Error(),
	}}
}

// FatalError is the last frame sent before the server closes a connection.
func FatalError(err error) Event {
	return Event{Type: EventError, Data: ErrorPayload{Reason: Reason(err), Error: err.Error()}}
}

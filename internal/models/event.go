package models

import "time"

type EventType string

const (
	EventMessagePosted      EventType = "message.posted"
	EventMessageDeleted     EventType = "message.deleted"
	EventMessageDelivered   EventType = "message.delivered"
	EventMessageRead        EventType = "message.read"
	EventSessionRead        EventType = "session.read"
	EventReactionAdded      EventType = "reaction.added"
	EventReactionRemoved    EventType = "reaction.removed"
	EventParticipantAdded   EventType = "participant.added"
	EventParticipantRemoved EventType = "participant.removed"
)

// Event is published after a mutation commits and fanned out to connected session members.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	MessageID string    `json:"message_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// ClientFrame is an acknowledgement sent by a WebSocket client.
type ClientFrame struct {
	Type      string `json:"type"` // "delivered", "read", "ping"
	MessageID string `json:"message_id"`
}

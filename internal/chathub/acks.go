package chathub

import (
	"context"
	"log"
)

// Inbound frame types.
const (
	FrameDelivered = "delivered"
	FrameRead      = "read"
	FramePing      = "ping"
)

// handleFrame applies a client acknowledgement. Only members of the message's session other
// than its sender may acknowledge it.
func (m *ManagerService) handleFrame(ctx context.Context, f Frame) {
	switch f.Type {
	case FramePing:
		if m.Presence != nil {
			if err := m.Presence.Heartbeat(ctx, f.UserID); err != nil {
				log.Printf("WARN: [Hub] Presence heartbeat for %s failed: %v", f.UserID, err)
			}
		}
		return
	case FrameDelivered, FrameRead:
	default:
		log.Printf("WARN: [Hub] Unknown frame type %q from user %s", f.Type, f.UserID)
		return
	}

	msg, err := m.Messages.GetMessage(ctx, f.MessageID)
	if err != nil {
		log.Printf("WARN: [Hub] Ack from %s for message %s rejected: %v", f.UserID, f.MessageID, err)
		return
	}
	if msg.SenderID == f.UserID {
		return
	}
	ok, err := m.Members.IsMember(ctx, msg.SessionID, f.UserID)
	if err != nil || !ok {
		log.Printf("WARN: [Hub] Ack from %s for message %s rejected: not a member", f.UserID, f.MessageID)
		return
	}

	if f.Type == FrameDelivered {
		_, err = m.Tracker.MarkDelivered(ctx, f.MessageID)
	} else {
		_, err = m.Tracker.MarkRead(ctx, f.MessageID)
	}
	if err != nil {
		log.Printf("ERROR: [Hub] Applying %s ack for message %s failed: %v", f.Type, f.MessageID, err)
	}
}

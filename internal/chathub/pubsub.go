package chathub

import (
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/storage"
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// StartPubSubListener forwards events received on the session channels to the hub.
// The subscription is closed when ctx is cancelled.
func (m *ManagerService) StartPubSubListener(ctx context.Context, sub *redis.PubSub) {
	go func() {
		defer sub.Close()
		ch := sub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					log.Println("WARN: [Hub] Redis subscription closed")
					return
				}
				ev, err := storage.DecodeEvent(msg.Payload)
				if err != nil {
					log.Printf("ERROR: [Hub] Dropping message from %s: %v", msg.Channel, err)
					continue
				}
				select {
				case m.PubSubCh <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// broadcast sends ev to every connected member of its session.
func (m *ManagerService) broadcast(ctx context.Context, ev models.Event) {
	recipients, err := m.recipients(ctx, ev)
	if err != nil {
		log.Printf("ERROR: [Hub] Cannot resolve members of session %s: %v", ev.SessionID, err)
		return
	}

	var slow []Client
	m.mu.RLock()
	for _, userID := range recipients {
		for c := range m.Clients[userID] {
			select {
			case c.GetSendChannel() <- ev:
			default:
				slow = append(slow, c)
			}
		}
	}
	m.mu.RUnlock()

	for _, c := range slow {
		log.Printf("WARN: [Hub] Send buffer full for user %s, dropping connection", c.GetUserID())
		m.unregister(ctx, c)
	}
}

// recipients returns the users an event is delivered to. Participant lists are cached per
// session, refreshed whenever membership changes and evicted least recently used first.
func (m *ManagerService) recipients(ctx context.Context, ev models.Event) ([]string, error) {
	switch ev.Type {
	case models.EventParticipantAdded, models.EventParticipantRemoved:
		m.participants.Remove(ev.SessionID)
	}

	ids, ok := m.participants.Get(ev.SessionID)
	if !ok {
		var err error
		if ids, err = m.Members.ListParticipants(ctx, ev.SessionID); err != nil {
			return nil, err
		}
		m.participants.Add(ev.SessionID, ids)
	}

	// A removed participant still learns about the removal.
	if ev.Type == models.EventParticipantRemoved && ev.UserID != "" {
		return append(append([]string(nil), ids...), ev.UserID), nil
	}
	return ids, nil
}

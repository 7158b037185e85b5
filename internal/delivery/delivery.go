// Package delivery tracks the Sent → Delivered → Read lifecycle of messages.
package delivery

import (
	"chatcore/backend/internal/membership"
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/storage"
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// State is the delivery state of a message.
type State int

const (
	StateSent State = iota + 1
	StateDelivered
	StateRead
)

func (s State) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateDelivered:
		return "delivered"
	case StateRead:
		return "read"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) valid() bool {
	return s >= StateSent && s <= StateRead
}

// StateOf derives the state from the stored flags. Read without Delivered is not a state.
func StateOf(m *models.Message) (State, error) {
	switch {
	case m.Read && !m.Delivered:
		return 0, fmt.Errorf("%w: message %s is read but not delivered", models.ErrInvalidTransition, m.ID)
	case m.Read:
		return StateRead, nil
	case m.Delivered:
		return StateDelivered, nil
	default:
		return StateSent, nil
	}
}

// Advance moves from one state towards another. Moving to the same or an earlier state
// is a no-op that reports changed=false, so states only ever move forward.
func Advance(from, to State) (next State, changed bool, err error) {
	if !from.valid() || !to.valid() {
		return from, false, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}
	if to <= from {
		return from, false, nil
	}
	return to, true, nil
}

// Counts summarizes the delivery states of a session's messages.
type Counts struct {
	Total     int64 `json:"total"`
	Sent      int64 `json:"sent"`
	Delivered int64 `json:"delivered"`
	Read      int64 `json:"read"`
}

// Service is the delivery tracker.
type Service struct {
	Storage *storage.Service
	Events  storage.Publisher
}

// NewService creates a new delivery tracker.
func NewService(s *storage.Service, events storage.Publisher) *Service {
	return &Service{Storage: s, Events: events}
}

// MarkDelivered moves a message from Sent to Delivered. It is a no-op for messages that are
// already delivered or read.
func (s *Service) MarkDelivered(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	var changed bool
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&msg, "id = ?", messageID).Error; err != nil {
			return err
		}
		from, err := StateOf(&msg)
		if err != nil {
			return err
		}
		if _, changed, err = Advance(from, StateDelivered); err != nil || !changed {
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Message{}).
			Where("id = ? AND delivered = ?", messageID, false).
			Updates(map[string]interface{}{"delivered": true, "delivered_at": now})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0
		msg.Delivered = true
		if changed {
			msg.DeliveredAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		storage.Notify(ctx, s.Events, models.Event{
			Type:      models.EventMessageDelivered,
			SessionID: msg.SessionID,
			MessageID: msg.ID,
			At:        *msg.DeliveredAt,
		})
	}
	return &msg, nil
}

// MarkRead moves a message to Read, implicitly delivering it. A stored read-but-undelivered
// row is repaired by setting the delivered flag as well.
func (s *Service) MarkRead(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	var changed bool
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&msg, "id = ?", messageID).Error; err != nil {
			return err
		}
		if msg.Read && msg.Delivered {
			return nil
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Message{}).
			Where("id = ? AND (read = ? OR delivered = ?)", messageID, false, false).
			Updates(map[string]interface{}{
				"delivered":    true,
				"read":         true,
				"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", now),
				"read_at":      gorm.Expr("COALESCE(read_at, ?)", now),
			})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0
		if !changed {
			return nil
		}
		if msg.DeliveredAt == nil {
			msg.DeliveredAt = &now
		}
		if msg.ReadAt == nil {
			msg.ReadAt = &now
		}
		msg.Delivered, msg.Read = true, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		storage.Notify(ctx, s.Events, models.Event{
			Type:      models.EventMessageRead,
			SessionID: msg.SessionID,
			MessageID: msg.ID,
			At:        *msg.ReadAt,
		})
	}
	return &msg, nil
}

// MarkSessionRead marks every message of the session created at or before upto, and not
// sent by userID, as delivered and read. A zero upto means now. It returns the number of
// messages that changed.
func (s *Service) MarkSessionRead(ctx context.Context, sessionID, userID string, upto time.Time) (int64, error) {
	now := time.Now().UTC()
	if upto.IsZero() {
		upto = now
	}

	var n int64
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		if err := membership.CheckMember(tx, sessionID, userID); err != nil {
			return err
		}
		res := tx.Model(&models.Message{}).
			Where("session_id = ? AND sender_id <> ? AND created_at <= ?", sessionID, userID, upto.UTC()).
			Where("(read = ? OR delivered = ?)", false, false).
			Updates(map[string]interface{}{
				"delivered":    true,
				"read":         true,
				"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", now),
				"read_at":      gorm.Expr("COALESCE(read_at, ?)", now),
			})
		n = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		log.Printf("INFO: [Delivery] User %s read %d messages in session %s", userID, n, sessionID)
		storage.Notify(ctx, s.Events, models.Event{
			Type:      models.EventSessionRead,
			SessionID: sessionID,
			UserID:    userID,
			Payload:   map[string]interface{}{"upto": upto.UTC(), "count": n},
			At:        now,
		})
	}
	return n, nil
}

// Counts returns how many of the session's messages are in each state.
func (s *Service) Counts(ctx context.Context, sessionID string) (Counts, error) {
	var rows []struct {
		Delivered bool
		Read      bool
		N         int64
	}
	err := s.Storage.Reader(ctx).Model(&models.Message{}).
		Select("delivered, read, COUNT(*) AS n").
		Where("session_id = ?", sessionID).
		Group("delivered, read").
		Scan(&rows).Error
	if err != nil {
		return Counts{}, err
	}

	var c Counts
	for _, r := range rows {
		c.Total += r.N
		switch {
		case r.Read:
			c.Read += r.N
		case r.Delivered:
			c.Delivered += r.N
		default:
			c.Sent += r.N
		}
	}
	return c, nil
}

// UnreadCount returns how many messages in the session userID has not read, excluding their own.
func (s *Service) UnreadCount(ctx context.Context, sessionID, userID string) (int64, error) {
	db := s.Storage.Reader(ctx)
	if err := membership.CheckMember(db, sessionID, userID); err != nil {
		return 0, err
	}
	var n int64
	err := db.Model(&models.Message{}).
		Where("session_id = ? AND sender_id <> ? AND read = ?", sessionID, userID, false).
		Count(&n).Error
	return n, err
}

// RepairInvalid fixes rows stored as read but not delivered and returns how many were fixed.
func (s *Service) RepairInvalid(ctx context.Context) (int64, error) {
	res := s.Storage.Reader(ctx).Model(&models.Message{}).
		Where("read = ? AND delivered = ?", true, false).
		Updates(map[string]interface{}{
			"delivered":    true,
			"delivered_at": gorm.Expr("COALESCE(read_at, ?)", time.Now().UTC()),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("WARN: [Delivery] Repaired %d messages stored as read but not delivered", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

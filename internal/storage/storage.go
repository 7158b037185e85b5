package storage

import (
	"chatcore/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SessionChannelPrefix prefixes the Redis channel of every chat session.
const SessionChannelPrefix = "session:"

// Publisher delivers committed events to the real-time layer.
type Publisher interface {
	PublishEvent(ctx context.Context, event models.Event) error
}

// Service is the persistence layer: PostgreSQL (or SQLite) through GORM and Redis for pub/sub.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Reader returns a context-bound handle for read-only queries.
func (s *Service) Reader(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

// Transaction runs fn in a database transaction. The transaction is committed when fn
// returns nil and rolled back on error or panic. Errors are passed through TranslateError.
func (s *Service) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return TranslateError(s.DB.WithContext(ctx).Transaction(fn))
}

// TranslateError maps driver errors onto the models error kinds.
// Errors that already carry a models kind are returned unchanged.
func TranslateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", models.ErrNotFound, err)
	case IsUniqueViolation(err):
		if errors.Is(err, models.ErrUniqueViolation) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrUniqueViolation, err)
	default:
		return err
	}
}

// IsUniqueViolation reports whether err was caused by a unique index rejecting a write.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrUniqueViolation) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "SQLSTATE 23505") || // postgres
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// SessionChannel returns the Redis channel name for a session.
func SessionChannel(sessionID string) string {
	return SessionChannelPrefix + sessionID
}

// PublishEvent публікує подію в Redis Pub/Sub (no-op without Redis).
func (s *Service) PublishEvent(ctx context.Context, event models.Event) error {
	if s.Redis == nil {
		return nil
	}

	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := s.Redis.Publish(ctx, SessionChannel(event.SessionID), string(msgBytes)).Err(); err != nil {
		log.Printf("ERROR: [Storage] Failed to publish %s for session %s: %v", event.Type, event.SessionID, err)
		return err
	}
	return nil
}

// SubscribeSessions subscribes to the channels of every session.
func (s *Service) SubscribeSessions(ctx context.Context) *redis.PubSub {
	return s.Redis.PSubscribe(ctx, SessionChannelPrefix+"*")
}

// DecodeEvent parses a Pub/Sub payload produced by PublishEvent.
func DecodeEvent(payload string) (models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("%w: event payload: %v", models.ErrCorrupt, err)
	}
	return ev, nil
}

// Notify publishes ev and only logs failures: the mutation it describes has already committed.
func Notify(ctx context.Context, p Publisher, ev models.Event) {
	if p == nil {
		return
	}
	if err := p.PublishEvent(ctx, ev); err != nil {
		log.Printf("WARN: [Storage] Event %s for session %s not published: %v", ev.Type, ev.SessionID, err)
	}
}

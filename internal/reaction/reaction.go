// Package reaction stores emoji reactions on messages and aggregates them per emoji.
package reaction

import (
	"chatcore/backend/internal/config"
	"chatcore/backend/internal/membership"
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/storage"
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the reaction aggregator.
type Service struct {
	Storage *storage.Service
	Events  storage.Publisher
}

// NewService creates a new reaction aggregator.
func NewService(s *storage.Service, events storage.Publisher) *Service {
	return &Service{Storage: s, Events: events}
}

func validateEmoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return fmt.Errorf("%w: emoji is required", models.ErrInvalidInput)
	}
	if len(emoji) > config.MaxEmojiLength {
		return fmt.Errorf("%w: emoji exceeds %d bytes", models.ErrInvalidInput, config.MaxEmojiLength)
	}
	return nil
}

// messageSession returns the session of a message.
func messageSession(tx *gorm.DB, messageID string) (string, error) {
	var msg models.Message
	if err := tx.Select("id", "session_id").First(&msg, "id = ?", messageID).Error; err != nil {
		return "", storage.TranslateError(err)
	}
	return msg.SessionID, nil
}

// AddReaction records that userID reacted to messageID with emoji. Adding the same
// reaction again returns the existing row.
func (s *Service) AddReaction(ctx context.Context, messageID, userID, emoji string) (*models.Reaction, error) {
	if err := validateEmoji(emoji); err != nil {
		return nil, err
	}

	var sessionID string
	var inserted bool
	var out models.Reaction
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if sessionID, err = messageSession(tx, messageID); err != nil {
			return err
		}
		if err := membership.CheckMember(tx, sessionID, userID); err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Reaction{UserID: userID, MessageID: messageID, Emoji: emoji})
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0

		return tx.Where("user_id = ? AND message_id = ? AND emoji = ?", userID, messageID, emoji).
			First(&out).Error
	})
	if err != nil {
		return nil, err
	}

	if inserted {
		storage.Notify(ctx, s.Events, models.Event{
			Type:      models.EventReactionAdded,
			SessionID: sessionID,
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			At:        out.CreatedAt,
		})
	}
	return &out, nil
}

// RemoveReaction deletes the reaction if present. Removing an absent reaction is a no-op.
func (s *Service) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	if err := validateEmoji(emoji); err != nil {
		return err
	}

	var sessionID string
	var removed bool
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if sessionID, err = messageSession(tx, messageID); err != nil {
			return err
		}
		res := tx.Where("user_id = ? AND message_id = ? AND emoji = ?", userID, messageID, emoji).
			Delete(&models.Reaction{})
		removed = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return err
	}

	if removed {
		storage.Notify(ctx, s.Events, models.Event{
			Type:      models.EventReactionRemoved,
			SessionID: sessionID,
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
		})
	}
	return nil
}

// Tally counts the reactions of a message per emoji.
func (s *Service) Tally(ctx context.Context, messageID string) (map[string]int64, error) {
	db := s.Storage.Reader(ctx)
	if _, err := messageSession(db, messageID); err != nil {
		return nil, err
	}

	var rows []struct {
		Emoji string
		N     int64
	}
	if err := db.Model(&models.Reaction{}).
		Select("emoji, COUNT(*) AS n").
		Where("message_id = ?", messageID).
		Group("emoji").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	tally := make(map[string]int64, len(rows))
	for _, r := range rows {
		tally[r.Emoji] = r.N
	}
	return tally, nil
}

// ListReactions returns the reactions of a message, oldest first.
func (s *Service) ListReactions(ctx context.Context, messageID string) ([]models.Reaction, error) {
	db := s.Storage.Reader(ctx)
	if _, err := messageSession(db, messageID); err != nil {
		return nil, err
	}
	var reactions []models.Reaction
	err := db.Where("message_id = ?", messageID).Order("created_at ASC, id ASC").Find(&reactions).Error
	return reactions, err
}

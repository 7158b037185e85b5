// Package aiconv keeps AI assistant transcripts. Each conversation stores its turns as one
// JSON array; appends are optimistic read-modify-write cycles guarded by a version column.
package aiconv

import (
	"chatcore/backend/internal/config"
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/storage"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the AI conversation session manager.
type Service struct {
	Storage *storage.Service
	// MaxRetries bounds the optimistic retries of AppendTurn.
	MaxRetries int
	Backoff    time.Duration
}

// NewService creates a new conversation manager.
func NewService(s *storage.Service) *Service {
	return &Service{Storage: s, MaxRetries: config.MaxAppendRetries, Backoff: config.AppendRetryBackoff}
}

// CreateConversation starts an empty transcript owned by userID.
func (s *Service) CreateConversation(ctx context.Context, userID string, title *string) (*models.AIConversation, error) {
	conv := &models.AIConversation{UserID: userID, Title: title, Messages: datatypes.JSON("[]"), Version: 1}
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
		}
		return tx.Create(conv).Error
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendTurn adds a turn to the end of the transcript. Concurrent appends are all kept;
// when the version keeps moving underneath, ErrConflict is returned after MaxRetries attempts.
func (s *Service) AppendTurn(ctx context.Context, conversationID string, turn models.Turn) (*models.AIConversation, error) {
	if strings.TrimSpace(turn.Role) == "" || strings.TrimSpace(turn.Content) == "" {
		return nil, fmt.Errorf("%w: turn needs role and content", models.ErrInvalidInput)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	for attempt := 0; attempt < s.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, attempt); err != nil {
				return nil, err
			}
		}

		conv, err := s.load(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		turns, err := decodeTurns(conv)
		if err != nil {
			return nil, err
		}
		blob, err := json.Marshal(append(turns, turn))
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		var applied bool
		err = s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
			res := tx.Model(&models.AIConversation{}).
				Where("id = ? AND version = ?", conversationID, conv.Version).
				Updates(map[string]interface{}{
					"messages":   datatypes.JSON(blob),
					"version":    conv.Version + 1,
					"updated_at": now,
				})
			applied = res.RowsAffected == 1
			return res.Error
		})
		if err != nil {
			return nil, err
		}
		if applied {
			conv.Messages = blob
			conv.Version++
			conv.UpdatedAt = now
			return conv, nil
		}
	}

	log.Printf("WARN: [AIConv] Conversation %s: append gave up after %d attempts", conversationID, s.MaxRetries)
	return nil, fmt.Errorf("%w: conversation %s is being modified concurrently", models.ErrConflict, conversationID)
}

func (s *Service) sleep(ctx context.Context, attempt int) error {
	d := s.Backoff * time.Duration(attempt)
	if s.Backoff > 0 {
		d += time.Duration(rand.Int63n(int64(s.Backoff)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) load(ctx context.Context, conversationID string) (*models.AIConversation, error) {
	var conv models.AIConversation
	if err := s.Storage.Reader(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		return nil, storage.TranslateError(err)
	}
	return &conv, nil
}

func decodeTurns(conv *models.AIConversation) ([]models.Turn, error) {
	var turns []models.Turn
	if len(conv.Messages) == 0 {
		return turns, nil
	}
	if err := json.Unmarshal(conv.Messages, &turns); err != nil {
		return nil, fmt.Errorf("%w: conversation %s transcript: %v", models.ErrCorrupt, conv.ID, err)
	}
	return turns, nil
}

// GetConversation returns the conversation row.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*models.AIConversation, error) {
	return s.load(ctx, conversationID)
}

// GetTranscript returns the decoded turns of a conversation in append order.
func (s *Service) GetTranscript(ctx context.Context, conversationID string) ([]models.Turn, error) {
	conv, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	turns, err := decodeTurns(conv)
	if err != nil {
		log.Printf("ERROR: [AIConv] %v", err)
		return nil, err
	}
	if turns == nil {
		turns = []models.Turn{}
	}
	return turns, nil
}

// ListConversations returns the user's conversations, most recently updated first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.AIConversation, error) {
	var convs []models.AIConversation
	err := s.Storage.Reader(ctx).
		Omit("messages").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&convs).Error
	return convs, err
}

// RenameConversation replaces the title. A nil title clears it.
func (s *Service) RenameConversation(ctx context.Context, conversationID string, title *string) error {
	return s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.AIConversation{}).Where("id = ?", conversationID).
			Updates(map[string]interface{}{"title": title, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation %s", models.ErrNotFound, conversationID)
		}
		return nil
	})
}

// DeleteConversation removes a conversation and its transcript.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	return s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&models.AIConversation{}, "id = ?", conversationID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation %s", models.ErrNotFound, conversationID)
		}
		return nil
	})
}

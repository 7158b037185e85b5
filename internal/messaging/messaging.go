// Package messaging persists chat messages, their attachments and the reply tree.
package messaging

import (
	"chatcore/backend/internal/config"
	"chatcore/backend/internal/membership"
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
)

// AttachmentInput describes a file sent together with a message.
type AttachmentInput struct {
	Type     string  `json:"type"`
	URL      string  `json:"url"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	MimeType *string `json:"mime_type,omitempty"`
}

// PostInput is the payload of PostMessage.
type PostInput struct {
	SessionID   string
	SenderID    string
	Content     string
	ReplyToID   *string
	Attachments []AttachmentInput
}

// Service is the message store.
type Service struct {
	Storage *storage.Service
	Events  storage.Publisher
	// Now is the clock used for CreatedAt; tests may replace it.
	Now func() time.Time
}

// NewService creates a new message store.
func NewService(s *storage.Service, events storage.Publisher) *Service {
	return &Service{Storage: s, Events: events, Now: time.Now}
}

func (s *Service) now() time.Time {
	return s.Now().UTC().Truncate(time.Microsecond)
}

// PostMessage appends a message to a session. The sender must be a member, and a reply
// must target an existing message of the same session. Within a session CreatedAt is
// strictly increasing, so a reply is always newer than its parent.
func (s *Service) PostMessage(ctx context.Context, in PostInput) (*models.Message, error) {
	if err := validatePost(in); err != nil {
		return nil, err
	}

	msg := &models.Message{
		SessionID: in.SessionID,
		SenderID:  in.SenderID,
		Content:   in.Content,
		ReplyToID: in.ReplyToID,
	}
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		if err := membership.CheckMember(tx, in.SessionID, in.SenderID); err != nil {
			return err
		}

		var parent models.Message
		if in.ReplyToID != nil {
			err := tx.Select("id", "session_id", "created_at").First(&parent, "id = ?", *in.ReplyToID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: reply target %s does not exist", models.ErrInvalidReference, *in.ReplyToID)
			}
			if err != nil {
				return err
			}
			if parent.SessionID != in.SessionID {
				return fmt.Errorf("%w: reply target %s belongs to another session", models.ErrInvalidReference, parent.ID)
			}
		}

		// Touching the session first serializes concurrent posts to it on row-locking databases.
		now := s.now()
		if err := tx.Model(&models.ChatSession{}).Where("id = ?", in.SessionID).Update("updated_at", now).Error; err != nil {
			return err
		}

		var last models.Message
		if err := tx.Select("id", "created_at").
			Where("session_id = ?", in.SessionID).
			Order("created_at DESC, id DESC").
			Limit(1).
			Find(&last).Error; err != nil {
			return err
		}
		createdAt := now
		if last.ID != "" && !createdAt.After(last.CreatedAt.UTC()) {
			createdAt = last.CreatedAt.UTC().Add(config.MessageOrderingStep)
		}
		if in.ReplyToID != nil && !parent.CreatedAt.UTC().Before(createdAt) {
			return fmt.Errorf("%w: reply target %s is not older than the reply", models.ErrInvalidReference, parent.ID)
		}
		msg.CreatedAt = createdAt

		if err := tx.Omit("Attachments", "Reactions").Create(msg).Error; err != nil {
			return err
		}
		if len(in.Attachments) == 0 {
			return nil
		}
		attachments := make([]models.Attachment, 0, len(in.Attachments))
		for _, a := range in.Attachments {
			attachments = append(attachments, models.Attachment{
				MessageID: msg.ID,
				Type:      a.Type,
				URL:       a.URL,
				Name:      a.Name,
				Size:      a.Size,
				MimeType:  a.MimeType,
				CreatedAt: createdAt,
			})
		}
		if err := tx.Create(&attachments).Error; err != nil {
			return err
		}
		msg.Attachments = attachments
		return nil
	})
	if err != nil {
		return nil, err
	}

	storage.Notify(ctx, s.Events, models.Event{
		Type:      models.EventMessagePosted,
		SessionID: msg.SessionID,
		MessageID: msg.ID,
		UserID:    msg.SenderID,
		Payload:   msg,
		At:        msg.CreatedAt,
	})
	return msg, nil
}

func validatePost(in PostInput) error {
	if in.SessionID == "" || in.SenderID == "" {
		return fmt.Errorf("%w: session and sender are required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0 {
		return fmt.Errorf("%w: message has no content", models.ErrInvalidInput)
	}
	if len(in.Content) > config.MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d bytes", models.ErrInvalidInput, config.MaxContentLength)
	}
	if len(in.Attachments) > config.MaxAttachments {
		return fmt.Errorf("%w: at most %d attachments", models.ErrInvalidInput, config.MaxAttachments)
	}
	if in.ReplyToID != nil && *in.ReplyToID == "" {
		return fmt.Errorf("%w: empty reply target", models.ErrInvalidReference)
	}
	for i, a := range in.Attachments {
		switch {
		case a.Size < 0:
			return fmt.Errorf("%w: attachment %d has negative size", models.ErrInvalidInput, i)
		case a.URL == "" || a.Name == "":
			return fmt.Errorf("%w: attachment %d needs url and name", models.ErrInvalidInput, i)
		case !config.AttachmentTypes[a.Type]:
			return fmt.Errorf("%w: attachment %d has unknown type %q", models.ErrInvalidInput, i, a.Type)
		}
	}
	return nil
}

// GetMessage returns a message with its attachments and reactions.
func (s *Service) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.Storage.Reader(ctx).
		Preload("Attachments").
		Preload("Reactions").
		First(&msg, "id = ?", messageID).Error
	if err != nil {
		return nil, storage.TranslateError(err)
	}
	return &msg, nil
}

// DeleteMessage removes a message together with its attachments and reactions.
// Replies are kept and become top-level messages. Only the sender may delete.
func (s *Service) DeleteMessage(ctx context.Context, messageID, actorID string) error {
	var msg models.Message
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&msg, "id = ?", messageID).Error; err != nil {
			return err
		}
		if msg.SenderID != actorID {
			return fmt.Errorf("%w: only the sender can delete message %s", models.ErrForbidden, messageID)
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Message{}).Where("reply_to_id = ?", messageID).Update("reply_to_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Message{}, "id = ?", messageID).Error
	})
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrForbidden) {
			log.Printf("ERROR: [Messaging] Failed to delete message %s: %v", messageID, err)
		}
		return err
	}

	storage.Notify(ctx, s.Events, models.Event{
		Type:      models.EventMessageDeleted,
		SessionID: msg.SessionID,
		MessageID: messageID,
		UserID:    actorID,
		At:        s.now(),
	})
	return nil
}

// Package membership manages which users belong to which chat session and
// provides the authorization gate used by every message and reaction operation.
package membership

import (
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles session membership.
type Service struct {
	Storage *storage.Service
	Events  storage.Publisher
}

// NewService creates a new membership service.
func NewService(s *storage.Service, events storage.Publisher) *Service {
	return &Service{Storage: s, Events: events}
}

// CheckMember verifies inside tx that userID belongs to sessionID.
// It returns ErrNotFound when the session does not exist and ErrForbidden when the user is not a member.
func CheckMember(tx *gorm.DB, sessionID, userID string) error {
	var count int64
	if err := tx.Model(&models.SessionParticipant{}).
		Where("chat_session_id = ? AND user_id = ?", sessionID, userID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if err := sessionExists(tx, sessionID); err != nil {
		return err
	}
	return fmt.Errorf("%w: user %s is not a participant of session %s", models.ErrForbidden, userID, sessionID)
}

func sessionExists(tx *gorm.DB, sessionID string) error {
	var count int64
	if err := tx.Model(&models.ChatSession{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
	}
	return nil
}

func userExists(tx *gorm.DB, userID string) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}
	return nil
}

// CreateSession creates a session with the creator and the given participants as members.
func (s *Service) CreateSession(ctx context.Context, name *string, creatorID string, participantIDs ...string) (*models.ChatSession, error) {
	ids := uniqueIDs(append([]string{creatorID}, participantIDs...))
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: a session needs at least two distinct users", models.ErrInvalidInput)
	}

	session := &models.ChatSession{Name: name}
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		var found int64
		if err := tx.Model(&models.User{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
			return err
		}
		if int(found) != len(ids) {
			return fmt.Errorf("%w: one or more participants do not exist", models.ErrNotFound)
		}

		if err := tx.Create(session).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		rows := make([]models.SessionParticipant, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, models.SessionParticipant{ChatSessionID: session.ID, UserID: id, JoinedAt: now})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("INFO: [Membership] Session %s created with %d participants", session.ID, len(ids))
	for _, id := range ids {
		storage.Notify(ctx, s.Events, models.Event{Type: models.EventParticipantAdded, SessionID: session.ID, UserID: id, At: session.CreatedAt})
	}
	return session, nil
}

// AddParticipant adds userID to the session. Adding an existing member is a no-op.
func (s *Service) AddParticipant(ctx context.Context, sessionID, userID string) error {
	var added bool
	now := time.Now().UTC()
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		if err := sessionExists(tx, sessionID); err != nil {
			return err
		}
		if err := userExists(tx, userID); err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.SessionParticipant{ChatSessionID: sessionID, UserID: userID, JoinedAt: now})
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected > 0
		if !added {
			return nil
		}
		return tx.Model(&models.ChatSession{}).Where("id = ?", sessionID).
			Updates(map[string]interface{}{"updated_at": now, "archived_at": nil}).Error
	})
	if err != nil {
		return err
	}

	if added {
		storage.Notify(ctx, s.Events, models.Event{Type: models.EventParticipantAdded, SessionID: sessionID, UserID: userID, At: now})
	}
	return nil
}

// RemoveParticipant removes userID from the session. Removing a non-member is a no-op.
// A session left without participants becomes eligible for archival.
func (s *Service) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	var removed bool
	var remaining int64
	now := time.Now().UTC()
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		if err := sessionExists(tx, sessionID); err != nil {
			return err
		}

		res := tx.Where("chat_session_id = ? AND user_id = ?", sessionID, userID).
			Delete(&models.SessionParticipant{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		if !removed {
			return nil
		}
		if err := tx.Model(&models.ChatSession{}).Where("id = ?", sessionID).Update("updated_at", now).Error; err != nil {
			return err
		}
		return tx.Model(&models.SessionParticipant{}).Where("chat_session_id = ?", sessionID).Count(&remaining).Error
	})
	if err != nil {
		return err
	}

	if removed {
		if remaining == 0 {
			log.Printf("INFO: [Membership] Session %s has no participants left, eligible for archival", sessionID)
		}
		storage.Notify(ctx, s.Events, models.Event{Type: models.EventParticipantRemoved, SessionID: sessionID, UserID: userID, At: now})
	}
	return nil
}

// IsMember reports whether userID belongs to sessionID.
func (s *Service) IsMember(ctx context.Context, sessionID, userID string) (bool, error) {
	err := CheckMember(s.Storage.Reader(ctx), sessionID, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// RequireMember is the authorization gate: ErrForbidden for non-members, ErrNotFound for unknown sessions.
func (s *Service) RequireMember(ctx context.Context, sessionID, userID string) error {
	return CheckMember(s.Storage.Reader(ctx), sessionID, userID)
}

// ListParticipants returns the user IDs of the session's members. Order is not significant.
func (s *Service) ListParticipants(ctx context.Context, sessionID string) ([]string, error) {
	db := s.Storage.Reader(ctx)
	if err := sessionExists(db, sessionID); err != nil {
		return nil, err
	}
	var ids []string
	if err := db.Model(&models.SessionParticipant{}).
		Where("chat_session_id = ?", sessionID).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListSessionsForUser returns the sessions userID belongs to, most recently active first.
func (s *Service) ListSessionsForUser(ctx context.Context, userID string) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	err := s.Storage.Reader(ctx).
		Joins("JOIN session_participants sp ON sp.chat_session_id = chat_sessions.id").
		Where("sp.user_id = ?", userID).
		Order("chat_sessions.updated_at DESC").
		Find(&sessions).Error
	if err != nil {
		log.Printf("ERROR: [Membership] Failed to list sessions for user %s: %v", userID, err)
		return nil, err
	}
	return sessions, nil
}

// ArchiveEmptySessions marks every session without participants as archived and returns how many were archived.
func (s *Service) ArchiveEmptySessions(ctx context.Context) (int64, error) {
	res := s.Storage.Reader(ctx).Model(&models.ChatSession{}).
		Where("archived_at IS NULL").
		Where("NOT EXISTS (SELECT 1 FROM session_participants sp WHERE sp.chat_session_id = chat_sessions.id)").
		Update("archived_at", time.Now().UTC())
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("INFO: [Membership] Archived %d empty sessions", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

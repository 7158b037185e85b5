package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatSession represents a room shared by two or more users.
// Membership is a set kept in the session_participants table.
type ChatSession struct {
	// ID is the unique identifier for the session (UUID).
	ID string `gorm:"primaryKey;size:36" json:"id"`
	// Name is an optional display name.
	Name *string `gorm:"size:120" json:"name,omitempty"`
	// ArchivedAt is set by the archival job once the session has no participants left.
	ArchivedAt *time.Time `gorm:"index" json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	// UpdatedAt is bumped on every new message and every membership change.
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (s *ChatSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// SessionParticipant is one (session, user) membership row.
type SessionParticipant struct {
	ChatSessionID string    `gorm:"primaryKey;size:36" json:"session_id"`
	UserID        string    `gorm:"primaryKey;size:36;index" json:"user_id"`
	JoinedAt      time.Time `json:"joined_at"`
}

func (SessionParticipant) TableName() string {
	return "session_participants"
}

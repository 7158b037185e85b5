package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AIConversation stores an assistant transcript as a single JSON array blob.
// Version is incremented on every write and guards read-modify-write appends.
type AIConversation struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"size:36;not null;index" json:"user_id"`
	Title     *string        `gorm:"size:255" json:"title,omitempty"`
	Messages  datatypes.JSON `gorm:"not null" json:"messages"`
	Version   int64          `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`
}

func (AIConversation) TableName() string {
	return "ai_conversations"
}

func (c *AIConversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// Turn is one entry of an AI conversation transcript.
type Turn struct {
	Role      string            `json:"role"` // "user", "assistant", "system"
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

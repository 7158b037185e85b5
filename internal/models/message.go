package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a chat message persisted in a session.
// Content, SenderID, SessionID and ReplyToID never change after creation;
// only the delivery flags move forward (and ReplyToID is cleared if the parent is deleted).
type Message struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`
	// SessionID is the session the message was posted to.
	SessionID string `gorm:"size:36;not null;index:idx_session_created,priority:1" json:"session_id"`
	// SenderID is the user who posted the message.
	SenderID string `gorm:"size:36;not null;index" json:"sender_id"`
	// Content is the text body of the message.
	Content string `gorm:"type:text;not null" json:"content"`
	// ReplyToID is the parent message in the reply tree, always an earlier message of the same session.
	ReplyToID *string `gorm:"size:36;index" json:"reply_to_id,omitempty"`

	Delivered   bool       `gorm:"not null;default:false" json:"delivered"`
	Read        bool       `gorm:"not null;default:false" json:"read"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index:idx_session_created,priority:2" json:"created_at"`

	Attachments []Attachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
	Reactions   []Reaction   `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// Attachment is a file linked to a message.
type Attachment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	MessageID string    `gorm:"size:36;not null;index" json:"message_id"`
	Type      string    `gorm:"size:32;not null" json:"type"`
	URL       string    `gorm:"type:text;not null" json:"url"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Size      int64     `gorm:"not null" json:"size"`
	MimeType  *string   `gorm:"size:127" json:"mime_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}

// Reaction is a single (user, message, emoji) token. The triple is unique.
type Reaction struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:ux_reaction_user_message_emoji,priority:1" json:"user_id"`
	MessageID string    `gorm:"size:36;not null;index;uniqueIndex:ux_reaction_user_message_emoji,priority:2" json:"message_id"`
	Emoji     string    `gorm:"size:64;not null;uniqueIndex:ux_reaction_user_message_emoji,priority:3" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Reaction) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

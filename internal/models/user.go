package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a registered person in the system.
// Presence fields (IsOnline, LastSeen) are owned by the presence service and are
// never touched by the message store.
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:190;not null" json:"email"`
	Name         *string   `gorm:"size:120" json:"name,omitempty"`
	Image        *string   `json:"image,omitempty"`
	PasswordHash *string   `json:"-"`
	LastSeen     time.Time `json:"last_seen"`
	IsOnline     bool      `gorm:"index" json:"is_online"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Accounts []Account `gorm:"foreignKey:UserID" json:"-"`
}

// BeforeCreate: це хук GORM, який викликається перед створенням запису.
// Він генерує новий UUID для користувача, якщо ID ще не встановлено.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Account links a User to an external identity provider (OAuth).
// The pair (Provider, ProviderAccountID) is unique across all users.
type Account struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	UserID            string     `gorm:"size:36;not null;index" json:"user_id"`
	Type              string     `gorm:"size:32;not null" json:"type"`
	Provider          string     `gorm:"size:64;not null;uniqueIndex:ux_account_provider" json:"provider"`
	ProviderAccountID string     `gorm:"size:190;not null;uniqueIndex:ux_account_provider" json:"provider_account_id"`
	AccessToken       *string    `json:"-"`
	RefreshToken      *string    `json:"-"`
	IDToken           *string    `json:"-"`
	Scope             *string    `json:"scope,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}

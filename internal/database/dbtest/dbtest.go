// Package dbtest provides an in-memory, fully migrated database for package tests.
package dbtest

import (
	"chatcore/backend/internal/database"
	"chatcore/backend/internal/models"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// New returns a fresh in-memory SQLite database with every table migrated.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(database.Options{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user with the given email and returns it.
func CreateUser(t testing.TB, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateSession inserts a session with the given members.
func CreateSession(t testing.TB, db *gorm.DB, userIDs ...string) *models.ChatSession {
	t.Helper()
	s := &models.ChatSession{}
	require.NoError(t, db.Create(s).Error)
	for _, id := range userIDs {
		require.NoError(t, db.Create(&models.SessionParticipant{ChatSessionID: s.ID, UserID: id}).Error)
	}
	return s
}

// Package database opens the GORM connection and migrates the schema.
package database

import (
	"chatcore/backend/internal/config"
	"chatcore/backend/internal/models"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options selects the dialector and logging for Open.
type Options struct {
	Driver             string // "postgres" or "sqlite"
	DSN                string
	LogLevel           string
	SlowQueryThreshold time.Duration
}

// Tables lists every model in migration order (referenced tables first).
var Tables = []interface{}{
	&models.User{},
	&models.Account{},
	&models.ChatSession{},
	&models.SessionParticipant{},
	&models.Message{},
	&models.Attachment{},
	&models.Reaction{},
	&models.AIConversation{},
}

// Open connects to the configured database.
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	case "sqlite":
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	slow := opts.SlowQueryThreshold
	if slow <= 0 {
		slow = config.DefaultSlowQueryThreshold
	}
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  parseLogLevel(opts.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	})
	if err != nil {
		log.Printf("ERROR: [Database] Failed to connect (%s): %v", opts.Driver, err)
		return nil, fmt.Errorf("connect %s: %w", opts.Driver, err)
	}

	if opts.Driver == "sqlite" {
		// SQLite allows one writer; a single pooled connection also keeps
		// ":memory:" databases alive for the lifetime of the pool.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Printf("INFO: [Database] Connection established (%s).", opts.Driver)
	return db, nil
}

// Migrate creates or updates every table in Tables.
func Migrate(db *gorm.DB) error {
	stmt := &gorm.Statement{DB: db}
	for i, table := range Tables {
		if err := stmt.Parse(table); err != nil {
			return fmt.Errorf("parse model %T: %w", table, err)
		}
		log.Printf("INFO: [Database] Migrating table (%d/%d): %s", i+1, len(Tables), stmt.Schema.Table)
		if err := db.AutoMigrate(table); err != nil {
			return fmt.Errorf("migrate %s: %w", stmt.Schema.Table, err)
		}
	}
	return nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

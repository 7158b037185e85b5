// Package presence tracks which users are connected. Redis holds a heartbeat key with a TTL;
// the users table mirrors it in IsOnline/LastSeen for queries.
package presence

import (
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/storage"
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// Key returns the Redis key holding a user's heartbeat.
func Key(userID string) string {
	return keyPrefix + userID
}

type Service struct {
	Storage *storage.Service
	TTL     time.Duration
}

func NewService(s *storage.Service, ttl time.Duration) *Service {
	return &Service{Storage: s, TTL: ttl}
}

func (s *Service) redis() (*redis.Client, error) {
	if s.Storage.Redis == nil {
		return nil, errors.New("presence: redis is not configured")
	}
	return s.Storage.Redis, nil
}

// Heartbeat refreshes the user's presence key and marks them online.
func (s *Service) Heartbeat(ctx context.Context, userID string) error {
	rdb, err := s.redis()
	if err != nil {
		return err
	}
	if err := rdb.Set(ctx, Key(userID), time.Now().UTC().Format(time.RFC3339), s.TTL).Err(); err != nil {
		log.Printf("ERROR: [Presence] Heartbeat for %s failed: %v", userID, err)
		return err
	}
	return s.setOnline(ctx, userID, true)
}

// IsOnline reports whether the user's heartbeat key is alive.
func (s *Service) IsOnline(ctx context.Context, userID string) (bool, error) {
	rdb, err := s.redis()
	if err != nil {
		return false, err
	}
	n, err := rdb.Exists(ctx, Key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Disconnect drops the heartbeat key and marks the user offline.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	rdb, err := s.redis()
	if err != nil {
		return err
	}
	if err := rdb.Del(ctx, Key(userID)).Err(); err != nil {
		return err
	}
	return s.setOnline(ctx, userID, false)
}

func (s *Service) setOnline(ctx context.Context, userID string, online bool) error {
	return s.Storage.Reader(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"is_online": online, "last_seen": time.Now().UTC()}).Error
}

// Sweep marks users offline whose heartbeat key has expired and returns how many changed.
// A user whose heartbeat lands after the sweep started keeps their online flag.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	rdb, err := s.redis()
	if err != nil {
		return 0, err
	}
	started := time.Now().UTC().Truncate(time.Microsecond)

	var online []string
	if err := s.Storage.Reader(ctx).Model(&models.User{}).
		Where("is_online = ?", true).
		Pluck("id", &online).Error; err != nil {
		return 0, err
	}
	if len(online) == 0 {
		return 0, nil
	}

	pipe := rdb.Pipeline()
	checks := make([]*redis.IntCmd, len(online))
	for i, id := range online {
		checks[i] = pipe.Exists(ctx, Key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	var stale []string
	for i, cmd := range checks {
		if cmd.Val() == 0 {
			stale = append(stale, online[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	res := s.Storage.Reader(ctx).Model(&models.User{}).
		Where("id IN ? AND is_online = ?", stale, true).
		Where("(last_seen IS NULL OR last_seen < ?)", started).
		Update("is_online", false)
	if res.Error != nil {
		return 0, res.Error
	}
	log.Printf("INFO: [Presence] Marked %d users offline", res.RowsAffected)
	return int(res.RowsAffected), nil
}

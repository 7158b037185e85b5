package messaging

import (
	"chatcore/backend/internal/config"
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/storage"
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ThreadNode is a message with its direct replies.
type ThreadNode struct {
	Message models.Message `json:"message"`
	Replies []*ThreadNode  `json:"replies"`
}

// Page is one page of a session's history.
type Page struct {
	Messages   []models.Message `json:"messages"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// threadQuery selects the IDs of a message and all of its transitive replies in the same
// session. UNION drops rows already visited, so a corrupt reply cycle still terminates.
const threadQuery = `
WITH RECURSIVE thread(id) AS (
	SELECT id FROM messages WHERE id = ?
	UNION
	SELECT m.id FROM messages m JOIN thread t ON m.reply_to_id = t.id WHERE m.session_id = ?
)
SELECT id FROM thread`

// GetThread returns the reply tree rooted at messageID. Replies are ordered by (CreatedAt, ID).
func (s *Service) GetThread(ctx context.Context, messageID string) (*ThreadNode, error) {
	db := s.Storage.Reader(ctx)

	var root models.Message
	if err := db.First(&root, "id = ?", messageID).Error; err != nil {
		return nil, storage.TranslateError(err)
	}

	// Walk reply_to_id down from the root instead of scanning the session's history.
	var ids []string
	if err := db.Raw(threadQuery, root.ID, root.SessionID).Scan(&ids).Error; err != nil {
		return nil, err
	}

	var msgs []models.Message
	if err := db.Preload("Attachments").
		Where("id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}

	nodes := make([]ThreadNode, len(msgs))
	index := make(map[string]int, len(msgs))
	rootIdx := -1
	for i := range msgs {
		nodes[i].Message = msgs[i]
		if msgs[i].ID == root.ID {
			rootIdx = i
			index[msgs[i].ID] = i
			continue
		}
		if msgs[i].ReplyToID == nil {
			continue
		}
		// Only parents seen earlier in the walk are linked, which keeps the result acyclic.
		parent, ok := index[*msgs[i].ReplyToID]
		if !ok {
			continue
		}
		index[msgs[i].ID] = i
		nodes[parent].Replies = append(nodes[parent].Replies, &nodes[i])
	}
	if rootIdx < 0 {
		return nil, fmt.Errorf("%w: message %s", models.ErrNotFound, messageID)
	}
	return &nodes[rootIdx], nil
}

// ListMessages returns up to limit messages of a session in (CreatedAt, ID) order,
// starting after cursor. An empty NextCursor marks the last page.
func (s *Service) ListMessages(ctx context.Context, sessionID, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrInvalidInput)
	}
	if limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}

	db := s.Storage.Reader(ctx)
	var count int64
	if err := db.Model(&models.ChatSession{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
	}

	q := db.Preload("Attachments").Preload("Reactions").Where("session_id = ?", sessionID)
	if cursor != "" {
		after, afterID, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", after, after, afterID)
	}

	var msgs []models.Message
	if err := q.Order("created_at ASC, id ASC").Limit(limit + 1).Find(&msgs).Error; err != nil {
		return nil, err
	}

	page := &Page{Messages: msgs}
	if len(msgs) > limit {
		page.Messages = msgs[:limit]
		last := page.Messages[limit-1]
		page.NextCursor = EncodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// EncodeCursor builds the opaque pagination token for a (CreatedAt, ID) position.
func EncodeCursor(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixMicro(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", models.ErrInvalidInput)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", models.ErrInvalidInput)
	}
	micros, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", models.ErrInvalidInput)
	}
	return time.UnixMicro(micros).UTC(), id, nil
}

package messaging

import (
	"context"

	"chatcore/backend/internal/models"
)

// IntegrityReport counts stored rows that break the message store invariants.
type IntegrityReport struct {
	ReadNotDelivered int64 `json:"read_not_delivered"`
	DanglingReplies  int64 `json:"dangling_replies"`
	CrossSession     int64 `json:"cross_session_replies"`
	ReplyNotNewer    int64 `json:"reply_not_newer"`
}

// OK reports whether no violation was found.
func (r IntegrityReport) OK() bool {
	return r == IntegrityReport{}
}

// VerifyIntegrity scans the messages table for invariant violations.
func (s *Service) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	db := s.Storage.Reader(ctx)
	var r IntegrityReport

	if err := db.Model(&models.Message{}).
		Where("read = ? AND delivered = ?", true, false).
		Count(&r.ReadNotDelivered).Error; err != nil {
		return r, err
	}
	if err := db.Model(&models.Message{}).
		Where("reply_to_id IS NOT NULL").
		Where("NOT EXISTS (SELECT 1 FROM messages p WHERE p.id = messages.reply_to_id)").
		Count(&r.DanglingReplies).Error; err != nil {
		return r, err
	}
	if err := db.Model(&models.Message{}).
		Joins("JOIN messages p ON p.id = messages.reply_to_id").
		Where("p.session_id <> messages.session_id").
		Count(&r.CrossSession).Error; err != nil {
		return r, err
	}
	if err := db.Model(&models.Message{}).
		Joins("JOIN messages p ON p.id = messages.reply_to_id").
		Where("p.created_at >= messages.created_at").
		Count(&r.ReplyNotNewer).Error; err != nil {
		return r, err
	}
	return r, nil
}

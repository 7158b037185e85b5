package config

import "time"

const (
	// Pagination
	DefaultPageSize = 50
	MaxPageSize     = 200

	// Messages
	MaxContentLength  = 16 * 1024
	MaxAttachments    = 16
	MaxEmojiLength    = 64
	MinPasswordLength = 8

	// MessageOrderingStep is added to the latest CreatedAt of a session when the clock has
	// not moved past it, keeping CreatedAt strictly increasing per session.
	MessageOrderingStep = time.Microsecond

	// Database
	DefaultSlowQueryThreshold = 200 * time.Millisecond

	// Real-time hub: sessions whose participant lists are kept in memory
	ParticipantCacheSize = 1024

	// AI transcripts
	MaxAppendRetries   = 8
	AppendRetryBackoff = 5 * time.Millisecond
)

// AttachmentTypes lists the accepted Attachment.Type values.
var AttachmentTypes = map[string]bool{
	"image": true,
	"video": true,
	"audio": true,
	"file":  true,
}

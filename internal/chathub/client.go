package chathub

import "chatcore/backend/internal/models"

// Client is one live connection of a user. A user may hold several at once.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string
	// GetSendChannel returns the channel the hub writes outgoing events to.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the connection down. The hub calls it exactly once, after unregistering.
	Close()
}

// Frame is an inbound acknowledgement tagged with the user that sent it.
type Frame struct {
	UserID string
	models.ClientFrame
}

package chathub_test

import (
	"chatcore/backend/internal/models"
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	userID      string
	RecvChannel chan models.Event

	mu     sync.Mutex
	closed bool
}

func newMockClient(userID string, buffer int) *MockClient {
	return &MockClient{userID: userID, RecvChannel: make(chan models.Event, buffer)}
}

func (c *MockClient) GetUserID() string                    { return c.userID }
func (c *MockClient) GetSendChannel() chan<- models.Event { return c.RecvChannel }
func (c *MockClient) Run()                                 {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type MockMembership struct{ mock.Mock }

func (m *MockMembership) ListParticipants(ctx context.Context, sessionID string) ([]string, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockMembership) IsMember(ctx context.Context, sessionID, userID string) (bool, error) {
	args := m.Called(ctx, sessionID, userID)
	return args.Bool(0), args.Error(1)
}

type MockMessages struct{ mock.Mock }

func (m *MockMessages) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

type MockTracker struct{ mock.Mock }

func (m *MockTracker) MarkDelivered(ctx context.Context, messageID string) (*models.Message, error) {
	args := m.Called(ctx, messageID)
	return &models.Message{ID: messageID, Delivered: true}, args.Error(0)
}

func (m *MockTracker) MarkRead(ctx context.Context, messageID string) (*models.Message, error) {
	args := m.Called(ctx, messageID)
	return &models.Message{ID: messageID, Delivered: true, Read: true}, args.Error(0)
}

type MockPresence struct{ mock.Mock }

func (m *MockPresence) Heartbeat(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockPresence) Disconnect(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// Package storagetest holds test doubles for the storage layer.
package storagetest

import (
	"chatcore/backend/internal/models"
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPublisher is a testify mock of storage.Publisher.
type MockPublisher struct {
	mock.Mock
}

// NewMockPublisher returns a publisher that accepts every event.
func NewMockPublisher() *MockPublisher {
	p := new(MockPublisher)
	p.On("PublishEvent", mock.Anything, mock.Anything).Return(nil)
	return p
}

func (m *MockPublisher) PublishEvent(ctx context.Context, event models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// Events returns the events published so far, in call order.
func (m *MockPublisher) Events() []models.Event {
	var events []models.Event
	for _, call := range m.Calls {
		if call.Method == "PublishEvent" {
			events = append(events, call.Arguments.Get(1).(models.Event))
		}
	}
	return events
}

// EventsOfType filters Events by type.
func (m *MockPublisher) EventsOfType(t models.EventType) []models.Event {
	var out []models.Event
	for _, ev := range m.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

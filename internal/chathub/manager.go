package chathub

import (
	"chatcore/backend/internal/config"
	"chatcore/backend/internal/models"
	"context"
	"log"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Membership answers who belongs to a session.
type Membership interface {
	ListParticipants(ctx context.Context, sessionID string) ([]string, error)
	IsMember(ctx context.Context, sessionID, userID string) (bool, error)
}

// MessageLookup loads a message to authorize acknowledgements.
type MessageLookup interface {
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
}

// Tracker applies delivery acknowledgements.
type Tracker interface {
	MarkDelivered(ctx context.Context, messageID string) (*models.Message, error)
	MarkRead(ctx context.Context, messageID string) (*models.Message, error)
}

// Presence records connection heartbeats.
type Presence interface {
	Heartbeat(ctx context.Context, userID string) error
	Disconnect(ctx context.Context, userID string) error
}

// ManagerService is the real-time hub: it owns the connected clients and fans committed
// events out to the members of each event's session.
type ManagerService struct {
	mu      sync.RWMutex
	Clients map[string]map[Client]bool

	// Channels
	IncomingCh   chan Frame
	RegisterCh   chan Client
	UnregisterCh chan Client
	PubSubCh     chan models.Event

	Members  Membership
	Messages MessageLookup
	Tracker  Tracker
	Presence Presence // optional

	// participants per session, least recently used sessions are evicted
	participants *lru.Cache[string, []string]
	done         chan struct{}
}

// NewManagerService creates a hub. presence may be nil.
func NewManagerService(members Membership, messages MessageLookup, tracker Tracker, presence Presence) *ManagerService {
	return &ManagerService{
		Clients:      make(map[string]map[Client]bool),
		IncomingCh:   make(chan Frame, 64),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		PubSubCh:     make(chan models.Event, 256),
		Members:      members,
		Messages:     messages,
		Tracker:      tracker,
		Presence:     presence,
		participants: newParticipantCache(config.ParticipantCacheSize),
		done:         make(chan struct{}),
	}
}

func newParticipantCache(size int) *lru.Cache[string, []string] {
	if size < 1 {
		size = 1
	}
	cache, _ := lru.New[string, []string](size) // only fails for size < 1
	return cache
}

// SetParticipantCacheSize changes how many sessions keep their participant list in memory.
func (m *ManagerService) SetParticipantCacheSize(size int) {
	if size < 1 {
		size = 1
	}
	m.participants.Resize(size)
}

// CachedSessions reports how many sessions currently have a cached participant list.
func (m *ManagerService) CachedSessions() int {
	return m.participants.Len()
}

// Register hands a new client to the hub. It is a no-op once the hub has stopped.
func (m *ManagerService) Register(c Client) {
	select {
	case m.RegisterCh <- c:
	case <-m.done:
	}
}

// Unregister removes a client from the hub. It is a no-op once the hub has stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Submit queues an inbound frame.
func (m *ManagerService) Submit(f Frame) {
	select {
	case m.IncomingCh <- f:
	case <-m.done:
	}
}

// IsConnected reports whether the user has at least one live connection.
func (m *ManagerService) IsConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Clients[userID]) > 0
}

// Run processes registrations, acknowledgements and events until ctx is cancelled.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			log.Println("INFO: [Hub] Stopped")
			return

		case c := <-m.RegisterCh:
			m.register(ctx, c)

		case c := <-m.UnregisterCh:
			m.unregister(ctx, c)

		case f := <-m.IncomingCh:
			go m.handleFrame(ctx, f)

		case ev := <-m.PubSubCh:
			m.broadcast(ctx, ev)
		}
	}
}

func (m *ManagerService) register(ctx context.Context, c Client) {
	userID := c.GetUserID()
	m.mu.Lock()
	if m.Clients[userID] == nil {
		m.Clients[userID] = make(map[Client]bool)
	}
	m.Clients[userID][c] = true
	m.mu.Unlock()

	log.Printf("INFO: [Hub] Client registered for user %s", userID)
	if m.Presence != nil {
		go func() {
			if err := m.Presence.Heartbeat(ctx, userID); err != nil {
				log.Printf("WARN: [Hub] Presence heartbeat for %s failed: %v", userID, err)
			}
		}()
	}
}

// unregister drops and closes c. Clients that are no longer registered are ignored.
func (m *ManagerService) unregister(ctx context.Context, c Client) {
	userID := c.GetUserID()
	m.mu.Lock()
	conns := m.Clients[userID]
	if !conns[c] {
		m.mu.Unlock()
		return
	}
	delete(conns, c)
	last := len(conns) == 0
	if last {
		delete(m.Clients, userID)
	}
	m.mu.Unlock()

	c.Close()
	log.Printf("INFO: [Hub] Client unregistered for user %s", userID)
	if last && m.Presence != nil {
		go func() {
			if err := m.Presence.Disconnect(ctx, userID); err != nil {
				log.Printf("WARN: [Hub] Presence disconnect for %s failed: %v", userID, err)
			}
		}()
	}
}

func (m *ManagerService) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, conns := range m.Clients {
		for c := range conns {
			c.Close()
		}
		delete(m.Clients, userID)
	}
}

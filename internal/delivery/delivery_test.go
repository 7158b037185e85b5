package delivery_test

import (
	"chatcore/backend/internal/database/dbtest"
	"chatcore/backend/internal/delivery"
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/storage"
	"chatcore/backend/internal/storage/storagetest"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     *delivery.Service
	events  *storagetest.MockPublisher
	alice   *models.User
	bob     *models.User
	session *models.ChatSession
	base    time.Time
	posted  int
}

func newFixture(t *testing.T) *fixture {
	db := dbtest.New(t)
	events := storagetest.NewMockPublisher()
	alice := dbtest.CreateUser(t, db, "alice@example.com")
	bob := dbtest.CreateUser(t, db, "bob@example.com")
	return &fixture{
		db:      db,
		svc:     delivery.NewService(storage.NewStorageService(db, nil), events),
		events:  events,
		alice:   alice,
		bob:     bob,
		session: dbtest.CreateSession(t, db, alice.ID, bob.ID),
		base:    time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond),
	}
}

func (f *fixture) message(t *testing.T, sender *models.User) *models.Message {
	t.Helper()
	f.posted++
	m := &models.Message{
		SessionID: f.session.ID,
		SenderID:  sender.ID,
		Content:   "hello",
		CreatedAt: f.base.Add(time.Duration(f.posted) * time.Second),
	}
	require.NoError(t, f.db.Omit("Attachments", "Reactions").Create(m).Error)
	return m
}

func (f *fixture) reload(t *testing.T, id string) models.Message {
	t.Helper()
	var m models.Message
	require.NoError(t, f.db.First(&m, "id = ?", id).Error)
	return m
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		from, to delivery.State
		next     delivery.State
		changed  bool
	}{
		{delivery.StateSent, delivery.StateDelivered, delivery.StateDelivered, true},
		{delivery.StateSent, delivery.StateRead, delivery.StateRead, true},
		{delivery.StateDelivered, delivery.StateRead, delivery.StateRead, true},
		{delivery.StateDelivered, delivery.StateDelivered, delivery.StateDelivered, false},
		{delivery.StateRead, delivery.StateDelivered, delivery.StateRead, false},
		{delivery.StateRead, delivery.StateSent, delivery.StateRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			next, changed, err := delivery.Advance(tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.next, next)
			assert.Equal(t, tt.changed, changed)
		})
	}

	_, _, err := delivery.Advance(delivery.State(0), delivery.StateRead)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestStateOf(t *testing.T) {
	s, err := delivery.StateOf(&models.Message{})
	require.NoError(t, err)
	assert.Equal(t, delivery.StateSent, s)

	s, err = delivery.StateOf(&models.Message{Delivered: true, Read: true})
	require.NoError(t, err)
	assert.Equal(t, delivery.StateRead, s)

	_, err = delivery.StateOf(&models.Message{Read: true})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestMarkDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.message(t, f.alice)

	got, err := f.svc.MarkDelivered(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Delivered)
	assert.False(t, got.Read)
	require.NotNil(t, got.DeliveredAt)

	again, err := f.svc.MarkDelivered(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, again.Delivered)
	assert.Len(t, f.events.EventsOfType(models.EventMessageDelivered), 1, "second call is a no-op")

	_, err = f.svc.MarkDelivered(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMarkDelivered_AfterRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.message(t, f.alice)

	_, err := f.svc.MarkRead(ctx, m.ID)
	require.NoError(t, err)
	got, err := f.svc.MarkDelivered(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Read, "delivery never moves a read message backwards")
	assert.True(t, got.Delivered)
}

func TestMarkRead_ImplicitDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.message(t, f.alice)

	got, err := f.svc.MarkRead(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Delivered)
	assert.True(t, got.Read)

	stored := f.reload(t, m.ID)
	assert.True(t, stored.Delivered)
	assert.True(t, stored.Read)
	require.NotNil(t, stored.DeliveredAt)
	require.NotNil(t, stored.ReadAt)

	_, err = f.svc.MarkRead(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, f.events.EventsOfType(models.EventMessageRead), 1)
}

func TestInvalidStoredState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.message(t, f.alice)
	require.NoError(t, f.db.Model(&models.Message{}).Where("id = ?", m.ID).Update("read", true).Error)

	_, err := f.svc.MarkDelivered(ctx, m.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	got, err := f.svc.MarkRead(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Delivered, "MarkRead repairs the row")
	assert.True(t, f.reload(t, m.ID).Delivered)
}

func TestRepairInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broken := f.message(t, f.alice)
	f.message(t, f.alice)
	require.NoError(t, f.db.Model(&models.Message{}).Where("id = ?", broken.ID).Update("read", true).Error)

	n, err := f.svc.RepairInvalid(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, f.reload(t, broken.ID).Delivered)

	n, err = f.svc.RepairInvalid(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkSessionRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	own := f.message(t, f.bob)
	first := f.message(t, f.alice)
	second := f.message(t, f.alice)
	later := f.message(t, f.alice)

	n, err := f.svc.MarkSessionRead(ctx, f.session.ID, f.bob.ID, second.CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.True(t, f.reload(t, first.ID).Read)
	assert.True(t, f.reload(t, second.ID).Read)
	assert.False(t, f.reload(t, later.ID).Read, "messages after upto are untouched")
	assert.False(t, f.reload(t, own.ID).Read, "the reader's own messages are untouched")

	n, err = f.svc.MarkSessionRead(ctx, f.session.ID, f.bob.ID, second.CreatedAt)
	require.NoError(t, err)
	assert.Zero(t, n)

	unread, err := f.svc.UnreadCount(ctx, f.session.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	outsider := dbtest.CreateUser(t, f.db, "carol@example.com")
	_, err = f.svc.MarkSessionRead(ctx, f.session.ID, outsider.ID, time.Time{})
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.svc.UnreadCount(ctx, f.session.ID, outsider.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.message(t, f.alice)
	b := f.message(t, f.alice)
	f.message(t, f.alice)

	_, err := f.svc.MarkDelivered(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkRead(ctx, b.ID)
	require.NoError(t, err)

	c, err := f.svc.Counts(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.Counts{Total: 3, Sent: 1, Delivered: 1, Read: 1}, c)
}

// Any interleaving of delivery operations keeps Read ⇒ Delivered for every message.
func TestReadImpliesDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 6; i++ {
		sender := f.alice
		if i%2 == 1 {
			sender = f.bob
		}
		ids = append(ids, f.message(t, sender).ID)
	}

	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 60; step++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(3) {
		case 0:
			_, err := f.svc.MarkDelivered(ctx, id)
			require.NoError(t, err)
		case 1:
			_, err := f.svc.MarkRead(ctx, id)
			require.NoError(t, err)
		case 2:
			upto := f.base.Add(time.Duration(rng.Intn(len(ids)+1)) * time.Second)
			_, err := f.svc.MarkSessionRead(ctx, f.session.ID, f.alice.ID, upto)
			require.NoError(t, err)
		}

		var violations int64
		require.NoError(t, f.db.Model(&models.Message{}).Where("read = ? AND delivered = ?", true, false).Count(&violations).Error)
		require.Zero(t, violations, "step %d", step)
	}
}

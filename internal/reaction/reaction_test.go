package reaction_test

import (
	"chatcore/backend/internal/database/dbtest"
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/reaction"
	"chatcore/backend/internal/storage"
	"chatcore/backend/internal/storage/storagetest"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     *reaction.Service
	events  *storagetest.MockPublisher
	alice   *models.User
	bob     *models.User
	carol   *models.User
	message *models.Message
}

func newFixture(t *testing.T) *fixture {
	db := dbtest.New(t)
	events := storagetest.NewMockPublisher()
	alice := dbtest.CreateUser(t, db, "alice@example.com")
	bob := dbtest.CreateUser(t, db, "bob@example.com")
	session := dbtest.CreateSession(t, db, alice.ID, bob.ID)

	msg := &models.Message{SessionID: session.ID, SenderID: alice.ID, Content: "lunch?"}
	require.NoError(t, db.Omit("Attachments", "Reactions").Create(msg).Error)

	return &fixture{
		db:      db,
		svc:     reaction.NewService(storage.NewStorageService(db, nil), events),
		events:  events,
		alice:   alice,
		bob:     bob,
		carol:   dbtest.CreateUser(t, db, "carol@example.com"),
		message: msg,
	}
}

func TestTally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddReaction(ctx, f.message.ID, f.alice.ID, "👍")
	require.NoError(t, err)
	_, err = f.svc.AddReaction(ctx, f.message.ID, f.bob.ID, "👍")
	require.NoError(t, err)
	_, err = f.svc.AddReaction(ctx, f.message.ID, f.bob.ID, "🎉")
	require.NoError(t, err)

	tally, err := f.svc.Tally(ctx, f.message.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"👍": 2, "🎉": 1}, tally)

	require.NoError(t, f.svc.RemoveReaction(ctx, f.message.ID, f.bob.ID, "👍"))
	tally, err = f.svc.Tally(ctx, f.message.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"👍": 1, "🎉": 1}, tally)

	require.NoError(t, f.svc.RemoveReaction(ctx, f.message.ID, f.bob.ID, "👍"), "removing twice is a no-op")
	assert.Len(t, f.events.EventsOfType(models.EventReactionRemoved), 1)
}

func TestAddReaction_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.AddReaction(ctx, f.message.ID, f.alice.ID, "❤️")
	require.NoError(t, err)
	second, err := f.svc.AddReaction(ctx, f.message.ID, f.alice.ID, "❤️")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.events.EventsOfType(models.EventReactionAdded), 1)

	list, err := f.svc.ListReactions(ctx, f.message.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAddReaction_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	ids := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.svc.AddReaction(ctx, f.message.ID, f.bob.ID, "🔥")
			errs[i] = err
			if err == nil {
				ids[i] = r.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "every caller sees the same row")
	}

	var count int64
	f.db.Model(&models.Reaction{}).Where("message_id = ?", f.message.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestAddReaction_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddReaction(ctx, "missing", f.alice.ID, "👍")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.AddReaction(ctx, f.message.ID, f.carol.ID, "👍")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.AddReaction(ctx, f.message.ID, f.alice.ID, " ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.svc.AddReaction(ctx, f.message.ID, f.alice.ID, strings.Repeat("a", 65))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.svc.Tally(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindshift/mindshift/internal/adapters/storage/sqlite"
	"github.com/mindshift/mindshift/internal/domain"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndReadBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateConversation(ctx, &domain.Conversation{
		OwnerID: "user-1",
		Title:   "a heavy morning...",
		Messages: []domain.Message{
			{Text: "welcome", Sender: domain.SenderAgent, CreatedAt: time.Now().UTC()},
			{Text: "a heavy morning", Sender: domain.SenderUser, CreatedAt: time.Now().UTC()},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var got []*domain.Conversation
	cancel, err := store.WatchOwned(ctx, "user-1", func(convs []*domain.Conversation, err error) {
		require.NoError(t, err)
		got = convs
	})
	require.NoError(t, err)
	defer cancel()

	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "a heavy morning...", got[0].Title)
	require.Len(t, got[0].Messages, 2)
	assert.Equal(t, domain.SenderUser, got[0].Messages[1].Sender)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestAppendIsVisibleToWatchers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, err := store.CreateConversation(ctx, &domain.Conversation{
		OwnerID:  "user-1",
		Messages: []domain.Message{{Text: "seed", Sender: domain.SenderUser}},
	})
	require.NoError(t, err)

	var updates []*domain.Conversation
	cancel, err := store.WatchConversation(ctx, id, func(conv *domain.Conversation, err error) {
		require.NoError(t, err)
		updates = append(updates, conv)
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, store.AppendMessages(ctx, id,
		domain.Message{Text: "reply", Sender: domain.SenderAgent, CreatedAt: time.Now().UTC()},
	))

	require.Len(t, updates, 2)
	assert.Len(t, updates[1].Messages, 2)
	assert.Equal(t, "reply", updates[1].Messages[1].Text)
}

func TestAppendMissingConversation(t *testing.T) {
	store := newTestStore(t)
	err := store.AppendMessages(context.Background(), "no-such-id", domain.Message{Text: "x"})
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestDeleteMissingConversation(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteConversation(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestDeleteNotifiesDirectory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, err := store.CreateConversation(ctx, &domain.Conversation{OwnerID: "user-1"})
	require.NoError(t, err)

	var got []*domain.Conversation
	cancel, err := store.WatchOwned(ctx, "user-1", func(convs []*domain.Conversation, err error) {
		require.NoError(t, err)
		got = convs
	})
	require.NoError(t, err)
	defer cancel()
	require.Len(t, got, 1)

	require.NoError(t, store.DeleteConversation(ctx, id))
	assert.Empty(t, got)
}

func TestListOrdersNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	older, err := store.CreateConversation(ctx, &domain.Conversation{OwnerID: "user-1", Title: "older..."})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	newer, err := store.CreateConversation(ctx, &domain.Conversation{OwnerID: "user-1", Title: "newer..."})
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, &domain.Conversation{OwnerID: "user-2", Title: "foreign..."})
	require.NoError(t, err)

	var got []*domain.Conversation
	cancel, err := store.WatchOwned(ctx, "user-1", func(convs []*domain.Conversation, err error) {
		require.NoError(t, err)
		got = convs
	})
	require.NoError(t, err)
	defer cancel()

	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0].ID)
	assert.Equal(t, older, got[1].ID)
}

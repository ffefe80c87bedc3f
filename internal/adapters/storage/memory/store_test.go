package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindshift/mindshift/internal/adapters/storage/memory"
	"github.com/mindshift/mindshift/internal/domain"
)

func TestCreateAssignsIDAndTimestamp(t *testing.T) {
	store := memory.NewStore()
	id, err := store.CreateConversation(context.Background(), &domain.Conversation{
		OwnerID: "user-1",
		Title:   "first...",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var got []*domain.Conversation
	cancel, err := store.WatchOwned(context.Background(), "user-1", func(convs []*domain.Conversation, err error) {
		got = convs
	})
	require.NoError(t, err)
	defer cancel()

	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestAppendToMissingConversation(t *testing.T) {
	store := memory.NewStore()
	err := store.AppendMessages(context.Background(), "no-such-id", domain.Message{Text: "x"})
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestDeleteMissingConversation(t *testing.T) {
	store := memory.NewStore()
	err := store.DeleteConversation(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestWatchConversationReceivesAppends(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	id, err := store.CreateConversation(ctx, &domain.Conversation{
		OwnerID:  "user-1",
		Messages: []domain.Message{{Text: "seed", Sender: domain.SenderUser}},
	})
	require.NoError(t, err)

	var updates []*domain.Conversation
	cancel, err := store.WatchConversation(ctx, id, func(conv *domain.Conversation, err error) {
		updates = append(updates, conv)
	})
	require.NoError(t, err)

	require.NoError(t, store.AppendMessages(ctx, id, domain.Message{Text: "more", Sender: domain.SenderAgent}))

	// Initial snapshot plus one echo per mutation.
	require.Len(t, updates, 2)
	assert.Len(t, updates[0].Messages, 1)
	assert.Len(t, updates[1].Messages, 2)

	cancel()
	require.NoError(t, store.AppendMessages(ctx, id, domain.Message{Text: "after cancel", Sender: domain.SenderUser}))
	assert.Len(t, updates, 2)
}

func TestWatchOwnedFiltersAndOrders(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	older, err := store.CreateConversation(ctx, &domain.Conversation{OwnerID: "user-1"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.CreateConversation(ctx, &domain.Conversation{OwnerID: "user-2"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	newer, err := store.CreateConversation(ctx, &domain.Conversation{OwnerID: "user-1"})
	require.NoError(t, err)

	var got []*domain.Conversation
	cancel, err := store.WatchOwned(ctx, "user-1", func(convs []*domain.Conversation, err error) {
		got = convs
	})
	require.NoError(t, err)
	defer cancel()

	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0].ID)
	assert.Equal(t, older, got[1].ID)
}

func TestWatchOwnedSeesDelete(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	id, err := store.CreateConversation(ctx, &domain.Conversation{OwnerID: "user-1"})
	require.NoError(t, err)

	var got []*domain.Conversation
	cancel, err := store.WatchOwned(ctx, "user-1", func(convs []*domain.Conversation, err error) {
		got = convs
	})
	require.NoError(t, err)
	defer cancel()
	require.Len(t, got, 1)

	require.NoError(t, store.DeleteConversation(ctx, id))
	assert.Empty(t, got)
}

func TestWatchersReceiveCopies(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	id, err := store.CreateConversation(ctx, &domain.Conversation{
		OwnerID:  "user-1",
		Messages: []domain.Message{{Text: "original", Sender: domain.SenderUser}},
	})
	require.NoError(t, err)

	var snap *domain.Conversation
	cancel, err := store.WatchConversation(ctx, id, func(conv *domain.Conversation, err error) {
		if snap == nil {
			snap = conv
		}
	})
	require.NoError(t, err)
	defer cancel()

	// Mutating a delivered snapshot must not leak into the store.
	snap.Messages[0].Text = "tampered"
	require.NoError(t, store.AppendMessages(ctx, id, domain.Message{Text: "next", Sender: domain.SenderAgent}))

	var latest []*domain.Conversation
	cancelDir, err := store.WatchOwned(ctx, "user-1", func(convs []*domain.Conversation, err error) {
		latest = convs
	})
	require.NoError(t, err)
	defer cancelDir()
	require.Len(t, latest, 1)
	assert.Equal(t, "original", latest[0].Messages[0].Text)
}

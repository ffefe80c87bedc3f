package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindshift/mindshift/internal/adapters/identity"
	"github.com/mindshift/mindshift/internal/adapters/storage/memory"
	"github.com/mindshift/mindshift/internal/app/client"
	"github.com/mindshift/mindshift/internal/domain"
)

type echoExchange struct{}

func (echoExchange) Exchange(ctx context.Context, history []domain.Message) (domain.Message, error) {
	return domain.Message{Text: "noted", Sender: domain.SenderAgent, CreatedAt: time.Now()}, nil
}

func newTestClient(t *testing.T, store *memory.Store) *client.Client {
	t.Helper()
	user := &domain.User{UID: "user-1", Email: "user@example.com"}
	c := client.New(store, store, echoExchange{}, identity.NewSession(user))
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)
	return c
}

func TestStartBindsSignedInUser(t *testing.T) {
	c := newTestClient(t, memory.NewStore())

	state := c.State()
	require.NotNil(t, state.User)
	assert.Equal(t, domain.UserID("user-1"), state.User.UID)
	assert.Empty(t, state.Directory)
	require.Len(t, state.Session.Messages, 1)
	assert.Equal(t, domain.WelcomeText, state.Session.Messages[0].Text)
}

func TestSendShowsUpInDirectoryAndSession(t *testing.T) {
	store := memory.NewStore()
	c := newTestClient(t, store)

	require.NoError(t, c.Send(context.Background(), "I keep replaying the meeting"))

	state := c.State()
	require.Len(t, state.Directory, 1)
	assert.Equal(t, "I keep replaying the meeting...", state.Directory[0].Title)
	assert.Equal(t, state.Directory[0].ID, state.Session.ActiveID)
	require.Len(t, state.Session.Messages, 3)
	assert.Equal(t, "noted", state.Session.Messages[2].Text)
}

func TestStartAutoSelectsNewestExistingConversation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	_, err := store.CreateConversation(ctx, &domain.Conversation{
		OwnerID: "user-1", Title: "older...",
	})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	newest, err := store.CreateConversation(ctx, &domain.Conversation{
		OwnerID: "user-1", Title: "newest...",
		Messages: []domain.Message{{Text: "hello again", Sender: domain.SenderUser}},
	})
	require.NoError(t, err)

	c := newTestClient(t, store)

	state := c.State()
	assert.Equal(t, newest, state.Session.ActiveID)
	require.Len(t, state.Session.Messages, 1)
	assert.Equal(t, "hello again", state.Session.Messages[0].Text)
}

func TestDeleteRemovesFromDirectory(t *testing.T) {
	store := memory.NewStore()
	c := newTestClient(t, store)
	require.NoError(t, c.Send(context.Background(), "a passing worry"))
	id := c.State().Session.ActiveID

	require.NoError(t, c.Delete(context.Background(), id))

	state := c.State()
	assert.Empty(t, state.Directory)
	assert.Empty(t, state.Session.ActiveID)
	assert.Equal(t, domain.WelcomeText, state.Session.Messages[0].Text)
}

func TestSignOutTearsDownSession(t *testing.T) {
	store := memory.NewStore()
	c := newTestClient(t, store)
	require.NoError(t, c.Send(context.Background(), "before signing out"))

	var states []client.State
	c.OnChange(func(s client.State) { states = append(states, s) })
	require.NoError(t, c.SignOut(context.Background()))

	state := c.State()
	assert.Nil(t, state.User)
	assert.Empty(t, state.Directory)
	assert.Empty(t, state.Session.Messages)

	err := c.Send(context.Background(), "after signing out")
	assert.ErrorIs(t, err, client.ErrSignedOut)
	require.NotEmpty(t, states)
	assert.Nil(t, states[len(states)-1].User)
}

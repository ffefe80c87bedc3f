package client

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/mindshift/mindshift/internal/app/directory"
	"github.com/mindshift/mindshift/internal/app/session"
	"github.com/mindshift/mindshift/internal/domain"
	"github.com/mindshift/mindshift/internal/observability"
)

// ErrSignedOut is returned by operations that need a signed-in user.
var ErrSignedOut = errors.New("no user is signed in")

// State is the full client-visible state: the signed-in user, the
// conversation directory and the active session.
type State struct {
	User      *domain.User
	Directory []*domain.Conversation
	Session   session.Snapshot
}

// Client is the headless chat client: it follows the identity collaborator
// and, while a user is signed in, owns one Directory and one session Manager
// wired together (directory updates drive the default selection policy).
// Sign-out tears both down, cancelling their subscriptions.
type Client struct {
	directoryStore    domain.DirectoryStore
	conversationStore domain.ConversationStore
	exchange          domain.ExchangeClient
	identity          domain.Identity

	mu             sync.Mutex
	directory      *directory.Directory
	manager        *session.Manager
	cancelIdentity domain.CancelFunc
	onChange       func(State)
}

func New(
	directoryStore domain.DirectoryStore,
	conversationStore domain.ConversationStore,
	exchange domain.ExchangeClient,
	identity domain.Identity,
) *Client {
	return &Client{
		directoryStore:    directoryStore,
		conversationStore: conversationStore,
		exchange:          exchange,
		identity:          identity,
	}
}

// OnChange registers a callback invoked with the full state after every
// visible change. Register before Start.
func (c *Client) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Start binds to the current identity and follows identity changes.
func (c *Client) Start(ctx context.Context) error {
	cancel := c.identity.OnChange(func(user *domain.User) {
		if err := c.bind(ctx, user); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Msg("rebinding after identity change failed")
		}
	})
	c.mu.Lock()
	c.cancelIdentity = cancel
	c.mu.Unlock()

	return c.bind(ctx, c.identity.CurrentUser())
}

// Stop tears everything down.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancelIdentity
	c.cancelIdentity = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	_ = c.bind(context.Background(), nil)
}

// bind replaces the per-user directory and manager for the given user (nil
// for signed out). The previous pair is torn down first so no stale
// subscription outlives its owner scope.
func (c *Client) bind(ctx context.Context, user *domain.User) error {
	c.mu.Lock()
	if c.directory != nil {
		c.directory.Stop()
		c.directory = nil
	}
	if c.manager != nil {
		c.manager.Close()
		c.manager = nil
	}
	if user == nil {
		c.mu.Unlock()
		c.emit()
		return nil
	}

	mgr := session.NewManager(c.conversationStore, c.exchange, user.UID)
	dir := directory.New(c.directoryStore)
	mgr.OnChange(func(session.Snapshot) { c.emit() })
	dir.OnChange(func(conversations []*domain.Conversation) {
		if err := mgr.ApplyDirectory(ctx, conversations); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Msg("applying directory update failed")
		}
		c.emit()
	})
	c.directory = dir
	c.manager = mgr
	c.mu.Unlock()

	c.emit()
	return dir.Start(ctx, user.UID)
}

func (c *Client) emit() {
	c.mu.Lock()
	fn := c.onChange
	state := c.stateLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (c *Client) stateLocked() State {
	state := State{User: c.identity.CurrentUser()}
	if c.directory != nil {
		state.Directory = c.directory.Conversations()
	}
	if c.manager != nil {
		state.Session = c.manager.Snapshot()
	}
	return state
}

// State returns the current full state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Client) sessionManager() (*session.Manager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manager == nil {
		return nil, ErrSignedOut
	}
	return c.manager, nil
}

// Send forwards to the active session manager.
func (c *Client) Send(ctx context.Context, text string) error {
	mgr, err := c.sessionManager()
	if err != nil {
		return err
	}
	return mgr.Send(ctx, text)
}

// Select makes the given conversation active.
func (c *Client) Select(ctx context.Context, id domain.ConversationID) error {
	mgr, err := c.sessionManager()
	if err != nil {
		return err
	}
	return mgr.Select(ctx, id)
}

// StartNew resets to a blank session.
func (c *Client) StartNew(ctx context.Context) error {
	mgr, err := c.sessionManager()
	if err != nil {
		return err
	}
	return mgr.StartNew(ctx)
}

// Delete removes a conversation, clearing the selection first when it is the
// active one.
func (c *Client) Delete(ctx context.Context, id domain.ConversationID) error {
	mgr, err := c.sessionManager()
	if err != nil {
		return err
	}
	return mgr.Delete(ctx, id)
}

// SignOut signs the user out; the identity change notification tears down the
// directory and session.
func (c *Client) SignOut(ctx context.Context) error {
	return c.identity.SignOut(ctx)
}

package domain

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ErrConversationNotFound is returned by stores when the requested record
// does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

// CancelFunc tears down a live subscription. Idempotent; calling it more than
// once is harmless.
type CancelFunc func()

// DirectoryStore is the store contract the conversation directory requires:
// a live subscription to the full set of conversations owned by one user,
// ordered by creation time descending. The callback is re-invoked with the
// complete matching set on every change (add, remove, field change).
type DirectoryStore interface {
	WatchOwned(ctx context.Context, owner UserID, fn func([]*Conversation, error)) (CancelFunc, error)
}

// ConversationStore is the store contract the session manager requires.
// CreateConversation assigns the id and server timestamp; AppendMessages is
// an atomic array append on an existing record; WatchConversation re-emits
// the canonical record on every change.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) (ConversationID, error)
	AppendMessages(ctx context.Context, id ConversationID, msgs ...Message) error
	DeleteConversation(ctx context.Context, id ConversationID) error
	WatchConversation(ctx context.Context, id ConversationID, fn func(*Conversation, error)) (CancelFunc, error)
}

// ExchangeClient is one request/response round trip to the generative
// backend. Stateless: the full ordered history is resent on every call, and
// the client never retries.
type ExchangeClient interface {
	Exchange(ctx context.Context, history []Message) (Message, error)
}

// ExchangeError reports a failed exchange: a non-success HTTP-level outcome
// or a malformed response body.
type ExchangeError struct {
	Status int
	Detail string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange failed (status %d): %s", e.Status, e.Detail)
}

// Identity reports the authenticated user. CurrentUser returns nil when
// signed out; OnChange notifies on sign-in and sign-out.
type Identity interface {
	CurrentUser() *User
	OnChange(fn func(*User)) CancelFunc
	SignOut(ctx context.Context) error
}

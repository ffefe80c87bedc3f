package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/mindshift/mindshift/internal/domain"
	"github.com/mindshift/mindshift/internal/observability"
)

// Directory maintains the live, newest-first list of one owner's
// conversations as a pure projection of store contents. It never fabricates
// an entry on its own; entries appear and disappear only because the store
// said so.
type Directory struct {
	store domain.DirectoryStore

	mu            sync.Mutex
	owner         domain.UserID
	conversations []*domain.Conversation
	cancel        domain.CancelFunc
	onChange      func([]*domain.Conversation)
}

func New(store domain.DirectoryStore) *Directory {
	return &Directory{store: store}
}

// OnChange registers a callback invoked with the full conversation list on
// every store update. Register before Start.
func (d *Directory) OnChange(fn func([]*domain.Conversation)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// Start subscribes to the owner's conversation set. Exactly one subscription
// is live per directory; starting again (for instance after the signed-in
// user changes) tears the previous one down first. An empty result set is not
// an error.
func (d *Directory) Start(ctx context.Context, owner domain.UserID) error {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.owner = owner
	d.conversations = nil
	d.mu.Unlock()

	cancel, err := d.store.WatchOwned(ctx, owner, func(conversations []*domain.Conversation, err error) {
		d.apply(ctx, owner, conversations, err)
	})
	if err != nil {
		return errors.Wrapf(err, "watching conversations for %s", owner)
	}

	d.mu.Lock()
	if d.owner != owner {
		d.mu.Unlock()
		cancel()
		return nil
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.cancel = cancel
	d.mu.Unlock()
	return nil
}

// Stop tears the subscription down and clears the list. Called on sign-out;
// no further events are emitted.
func (d *Directory) Stop() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.owner = ""
	d.conversations = nil
	d.mu.Unlock()
}

// apply folds one store update into the projection. Records not owned by the
// current user are dropped defensively, and ordering is normalized to
// createdAt descending even if the store already orders.
func (d *Directory) apply(ctx context.Context, owner domain.UserID, conversations []*domain.Conversation, err error) {
	log := observability.LoggerFromContext(ctx)
	if err != nil {
		log.Warn().Err(err).Str("owner_id", string(owner)).Msg("directory subscription error")
		return
	}

	owned := make([]*domain.Conversation, 0, len(conversations))
	for _, c := range conversations {
		if c.OwnerID != owner {
			log.Warn().
				Str("conversation_id", string(c.ID)).
				Str("owner_id", string(c.OwnerID)).
				Msg("dropping conversation not owned by current user")
			continue
		}
		owned = append(owned, c)
	}
	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	d.mu.Lock()
	if d.owner != owner {
		d.mu.Unlock()
		return
	}
	d.conversations = owned
	fn := d.onChange
	d.mu.Unlock()

	if fn != nil {
		fn(owned)
	}
}

// Conversations returns the current projection, newest first.
func (d *Directory) Conversations() []*domain.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*domain.Conversation, len(d.conversations))
	copy(out, d.conversations)
	return out
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindshift/mindshift/internal/domain"
)

// Store is an in-memory implementation of domain.DirectoryStore and
// domain.ConversationStore with synchronous subscription fan-out. Used by
// local mode and tests; watchers receive the current state immediately on
// subscribe, then again after every mutation.
type Store struct {
	mu            sync.Mutex
	conversations map[domain.ConversationID]*domain.Conversation
	nextWatcher   int
	convWatchers  map[domain.ConversationID]map[int]func(*domain.Conversation, error)
	dirWatchers   map[int]*dirWatcher
	now           func() time.Time
}

type dirWatcher struct {
	owner domain.UserID
	fn    func([]*domain.Conversation, error)
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[domain.ConversationID]*domain.Conversation),
		convWatchers:  make(map[domain.ConversationID]map[int]func(*domain.Conversation, error)),
		dirWatchers:   make(map[int]*dirWatcher),
		now:           time.Now,
	}
}

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) (domain.ConversationID, error) {
	s.mu.Lock()
	id := domain.ConversationID(uuid.NewString())
	stored := cloneConversation(conv)
	stored.ID = id
	stored.CreatedAt = s.now()
	s.conversations[id] = stored
	notify := s.pendingNotificationsLocked(id, stored.OwnerID)
	s.mu.Unlock()

	notify()
	return id, nil
}

func (s *Store) AppendMessages(ctx context.Context, id domain.ConversationID, msgs ...domain.Message) error {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrConversationNotFound
	}
	conv.Messages = append(conv.Messages, msgs...)
	notify := s.pendingNotificationsLocked(id, conv.OwnerID)
	s.mu.Unlock()

	notify()
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrConversationNotFound
	}
	owner := conv.OwnerID
	delete(s.conversations, id)
	notify := s.pendingNotificationsLocked(id, owner)
	s.mu.Unlock()

	notify()
	return nil
}

func (s *Store) WatchConversation(ctx context.Context, id domain.ConversationID, fn func(*domain.Conversation, error)) (domain.CancelFunc, error) {
	s.mu.Lock()
	key := s.nextWatcher
	s.nextWatcher++
	if s.convWatchers[id] == nil {
		s.convWatchers[id] = make(map[int]func(*domain.Conversation, error))
	}
	s.convWatchers[id][key] = fn
	current := cloneConversation(s.conversations[id])
	s.mu.Unlock()

	// Initial snapshot, mirroring the remote store's subscribe semantics.
	if current != nil {
		fn(current, nil)
	}

	cancel := func() {
		s.mu.Lock()
		if watchers := s.convWatchers[id]; watchers != nil {
			delete(watchers, key)
		}
		s.mu.Unlock()
	}
	return cancel, nil
}

func (s *Store) WatchOwned(ctx context.Context, owner domain.UserID, fn func([]*domain.Conversation, error)) (domain.CancelFunc, error) {
	s.mu.Lock()
	key := s.nextWatcher
	s.nextWatcher++
	s.dirWatchers[key] = &dirWatcher{owner: owner, fn: fn}
	current := s.ownedLocked(owner)
	s.mu.Unlock()

	fn(current, nil)

	cancel := func() {
		s.mu.Lock()
		delete(s.dirWatchers, key)
		s.mu.Unlock()
	}
	return cancel, nil
}

// pendingNotificationsLocked snapshots the callbacks and payloads affected by
// a mutation. The returned closure runs outside the store lock so callbacks
// can call back into the store.
func (s *Store) pendingNotificationsLocked(id domain.ConversationID, owner domain.UserID) func() {
	conv := cloneConversation(s.conversations[id])

	var convFns []func(*domain.Conversation, error)
	for _, fn := range s.convWatchers[id] {
		convFns = append(convFns, fn)
	}

	type dirNotification struct {
		fn    func([]*domain.Conversation, error)
		convs []*domain.Conversation
	}
	var dirFns []dirNotification
	for _, w := range s.dirWatchers {
		if w.owner != owner {
			continue
		}
		dirFns = append(dirFns, dirNotification{fn: w.fn, convs: s.ownedLocked(owner)})
	}

	return func() {
		for _, fn := range convFns {
			fn(conv, nil)
		}
		for _, n := range dirFns {
			n.fn(n.convs, nil)
		}
	}
}

// ownedLocked returns the owner's conversations newest first.
func (s *Store) ownedLocked(owner domain.UserID) []*domain.Conversation {
	var out []*domain.Conversation
	for _, conv := range s.conversations {
		if conv.OwnerID != owner {
			continue
		}
		out = append(out, cloneConversation(conv))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneConversation(conv *domain.Conversation) *domain.Conversation {
	if conv == nil {
		return nil
	}
	out := *conv
	out.Messages = make([]domain.Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return &out
}

package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mindshift/mindshift/internal/domain"
	"github.com/mindshift/mindshift/internal/observability"
)

// ErrExchangeInFlight is returned by Send when a previous send has not
// completed yet. Overlapping sends are rejected rather than queued so that a
// blank session can never create two conversation records.
var ErrExchangeInFlight = errors.New("an exchange is already in flight")

// Snapshot is the client-visible state of the active session.
type Snapshot struct {
	ActiveID domain.ConversationID
	Messages []domain.Message
	Pending  bool
}

// Manager owns the local view of the active conversation: which record is
// selected, the message sequence shown to the user, and whether an exchange
// is in flight. Local state is a cache of one conversation's canonical
// messages field; it may diverge transiently (optimistic appends) but
// converges to whatever the store reports, which is replaced wholesale on
// every live update.
type Manager struct {
	store    domain.ConversationStore
	exchange domain.ExchangeClient
	owner    domain.UserID
	now      func() time.Time

	mu          sync.Mutex
	activeID    domain.ConversationID
	messages    []domain.Message
	pending     bool
	cancelWatch domain.CancelFunc
	onChange    func(Snapshot)
	dirNonEmpty bool
}

// NewManager builds a session manager for one signed-in owner. The initial
// state is a fresh session: no active conversation, the synthetic welcome
// message only.
func NewManager(store domain.ConversationStore, exchange domain.ExchangeClient, owner domain.UserID) *Manager {
	m := &Manager{
		store:    store,
		exchange: exchange,
		owner:    owner,
		now:      time.Now,
	}
	m.messages = []domain.Message{domain.WelcomeMessage(m.now())}
	return m
}

// OnChange registers a callback invoked with a state snapshot after every
// visible mutation. Set it before the manager is driven; there is no
// unregister.
func (m *Manager) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Snapshot returns a copy of the current client-visible state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	msgs := make([]domain.Message, len(m.messages))
	copy(msgs, m.messages)
	return Snapshot{ActiveID: m.activeID, Messages: msgs, Pending: m.pending}
}

func (m *Manager) notify() {
	m.mu.Lock()
	fn := m.onChange
	snap := m.snapshotLocked()
	m.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// Select makes the given conversation active. The previous message
// subscription is cancelled before the new one is established, and every
// update from the new subscription replaces the local messages wholesale —
// the store is the single source of truth once an id exists. Selecting the
// empty id resets to a fresh session.
func (m *Manager) Select(ctx context.Context, id domain.ConversationID) error {
	m.mu.Lock()
	if m.cancelWatch != nil {
		m.cancelWatch()
		m.cancelWatch = nil
	}
	m.activeID = id
	if id == "" {
		m.messages = []domain.Message{domain.WelcomeMessage(m.now())}
		m.mu.Unlock()
		m.notify()
		return nil
	}
	m.messages = nil
	m.mu.Unlock()
	m.notify()

	return m.watch(ctx, id)
}

// StartNew clears the active conversation and resets to the welcome message.
// No store record is created; one appears lazily on the first send.
func (m *Manager) StartNew(ctx context.Context) error {
	return m.Select(ctx, "")
}

// watch subscribes to one conversation record and installs the cancel handle,
// unless the selection moved on while the subscription was being established.
func (m *Manager) watch(ctx context.Context, id domain.ConversationID) error {
	cancel, err := m.store.WatchConversation(ctx, id, func(conv *domain.Conversation, err error) {
		m.applyUpdate(ctx, id, conv, err)
	})
	if err != nil {
		return errors.Wrapf(err, "watching conversation %s", id)
	}

	m.mu.Lock()
	if m.activeID != id {
		m.mu.Unlock()
		cancel()
		return nil
	}
	if m.cancelWatch != nil {
		m.cancelWatch()
	}
	m.cancelWatch = cancel
	m.mu.Unlock()
	return nil
}

// applyUpdate folds one live update into local state. Updates for a
// conversation that is no longer active are dropped: a late echo from an old
// subscription must not overwrite the current session.
func (m *Manager) applyUpdate(ctx context.Context, id domain.ConversationID, conv *domain.Conversation, err error) {
	log := observability.LoggerFromContext(ctx)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", string(id)).Msg("conversation subscription error")
		return
	}
	if conv == nil {
		return
	}

	m.mu.Lock()
	if m.activeID != id {
		m.mu.Unlock()
		return
	}
	m.messages = conv.Messages
	m.mu.Unlock()
	m.notify()
}

// Send appends the user's message optimistically, persists it (creating the
// conversation record on first send), performs one exchange, and persists the
// reply. Pending is true for the whole span regardless of outcome.
func (m *Manager) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	log := observability.LoggerFromContext(ctx)

	m.mu.Lock()
	if m.pending {
		m.mu.Unlock()
		return ErrExchangeInFlight
	}
	m.pending = true
	userMsg := domain.Message{Text: text, Sender: domain.SenderUser, CreatedAt: m.now()}
	m.messages = append(m.messages, userMsg)
	activeID := m.activeID
	history := make([]domain.Message, len(m.messages))
	copy(history, m.messages)
	m.mu.Unlock()
	m.notify()

	defer func() {
		m.mu.Lock()
		m.pending = false
		m.mu.Unlock()
		m.notify()
	}()

	// Create-or-append: the one structural decision point. With pending held,
	// a second Send cannot race this branch into a double create.
	if activeID == "" {
		conv := &domain.Conversation{
			OwnerID:  m.owner,
			Title:    domain.DeriveTitle(text),
			Messages: history,
		}
		id, err := m.store.CreateConversation(ctx, conv)
		if err != nil {
			// The optimistic message stays; the next send retries the create.
			return errors.Wrap(err, "creating conversation")
		}
		m.mu.Lock()
		m.activeID = id
		m.mu.Unlock()
		activeID = id
		if err := m.watch(ctx, id); err != nil {
			log.Warn().Err(err).Str("conversation_id", string(id)).Msg("subscribing to new conversation failed")
		}
	} else {
		if err := m.store.AppendMessages(ctx, activeID, userMsg); err != nil {
			return errors.Wrap(err, "appending user message")
		}
	}

	reply, err := m.exchange.Exchange(ctx, history)
	if err != nil {
		log.Warn().Err(err).Msg("exchange failed")
		m.appendLocal(activeID, domain.ApologyMessage(m.now()))
		return nil
	}

	// Local append happens before the durable one so the store echo replaces
	// the local view with identical content instead of duplicating the reply.
	agentMsg := domain.Message{Text: reply.Text, Sender: domain.SenderAgent, CreatedAt: m.now()}
	m.appendLocal(activeID, agentMsg)
	if err := m.store.AppendMessages(ctx, activeID, agentMsg); err != nil {
		m.replaceLastLocal(activeID, agentMsg, domain.ApologyMessage(m.now()))
		return errors.Wrap(err, "appending agent message")
	}
	return nil
}

// appendLocal appends to the local view only, guarded against a selection
// change since the send started.
func (m *Manager) appendLocal(id domain.ConversationID, msg domain.Message) {
	m.mu.Lock()
	if m.activeID != id {
		m.mu.Unlock()
		return
	}
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	m.notify()
}

// replaceLastLocal swaps the reply for the apology when persisting the reply
// failed, guarded the same way as appendLocal.
func (m *Manager) replaceLastLocal(id domain.ConversationID, old, replacement domain.Message) {
	m.mu.Lock()
	if m.activeID != id {
		m.mu.Unlock()
		return
	}
	if n := len(m.messages); n > 0 && m.messages[n-1] == old {
		m.messages[n-1] = replacement
	} else {
		m.messages = append(m.messages, replacement)
	}
	m.mu.Unlock()
	m.notify()
}

// Delete removes a conversation. When it is the active one, the subscription
// is cancelled and the selection cleared before the durable delete is issued,
// so a late echo cannot re-populate messages for a record about to vanish.
// A failed delete is reported without restoring the selection.
func (m *Manager) Delete(ctx context.Context, id domain.ConversationID) error {
	m.mu.Lock()
	cleared := false
	if id == m.activeID {
		if m.cancelWatch != nil {
			m.cancelWatch()
			m.cancelWatch = nil
		}
		m.activeID = ""
		m.messages = []domain.Message{domain.WelcomeMessage(m.now())}
		cleared = true
	}
	m.mu.Unlock()
	if cleared {
		m.notify()
	}

	return errors.Wrapf(m.store.DeleteConversation(ctx, id), "deleting conversation %s", id)
}

// ApplyDirectory implements the default selection policy against the latest
// directory contents: when nothing is selected and the directory transitions
// from empty to non-empty, the newest conversation becomes active; when the
// directory becomes empty, the selection is cleared. Only the transition
// triggers auto-selection — deleting the open conversation must leave the
// fresh session in place even when other conversations remain.
func (m *Manager) ApplyDirectory(ctx context.Context, conversations []*domain.Conversation) error {
	m.mu.Lock()
	active := m.activeID
	wasNonEmpty := m.dirNonEmpty
	m.dirNonEmpty = len(conversations) > 0
	m.mu.Unlock()

	switch {
	case active == "" && len(conversations) > 0 && !wasNonEmpty:
		return m.Select(ctx, conversations[0].ID)
	case active != "" && len(conversations) == 0:
		return m.Select(ctx, "")
	}
	return nil
}

// Close cancels the message subscription. The manager must not be used
// afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.cancelWatch != nil {
		m.cancelWatch()
		m.cancelWatch = nil
	}
	m.mu.Unlock()
}

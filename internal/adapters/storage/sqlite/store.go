package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/mindshift/mindshift/internal/domain"
)

// Store implements domain.DirectoryStore and domain.ConversationStore on a
// local SQLite file. Messages are stored as a JSON column on the
// conversations row; appends rewrite the column inside a transaction, which
// keeps the append atomic for this single-process backend. Live subscriptions
// are in-process fan-out: every write through this store re-reads the
// affected rows and re-emits them to registered watchers.
type Store struct {
	db *sql.DB

	mu           sync.Mutex
	nextWatcher  int
	convWatchers map[domain.ConversationID]map[int]func(*domain.Conversation, error)
	dirWatchers  map[int]*dirWatcher
}

type dirWatcher struct {
	owner domain.UserID
	fn    func([]*domain.Conversation, error)
}

// New opens (creating if needed) the conversations database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			messages TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, errors.Wrap(err, "creating conversations table")
	}

	return &Store{
		db:           db,
		convWatchers: make(map[domain.ConversationID]map[int]func(*domain.Conversation, error)),
		dirWatchers:  make(map[int]*dirWatcher),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type messageRecord struct {
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

func encodeMessages(msgs []domain.Message) (string, error) {
	records := make([]messageRecord, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, messageRecord{Text: m.Text, Sender: string(m.Sender), CreatedAt: m.CreatedAt})
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return "", errors.Wrap(err, "marshaling messages")
	}
	return string(raw), nil
}

func decodeMessages(raw string) ([]domain.Message, error) {
	var records []messageRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, errors.Wrap(err, "unmarshaling messages")
	}
	msgs := make([]domain.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, domain.Message{Text: r.Text, Sender: domain.Sender(r.Sender), CreatedAt: r.CreatedAt})
	}
	return msgs, nil
}

// ─────────────────────────────────────────
// ConversationStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) (domain.ConversationID, error) {
	id := domain.ConversationID(uuid.NewString())
	createdAt := time.Now()

	messages, err := encodeMessages(conv.Messages)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, title, created_at, messages)
		VALUES (?, ?, ?, ?, ?)
	`, string(id), string(conv.OwnerID), conv.Title, createdAt.UnixMicro(), messages)
	if err != nil {
		return "", errors.Wrap(err, "inserting conversation")
	}

	s.notifyConversation(ctx, id)
	s.notifyDirectory(ctx, conv.OwnerID)
	return id, nil
}

func (s *Store) AppendMessages(ctx context.Context, id domain.ConversationID, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	var raw string
	var owner string
	err = tx.QueryRowContext(ctx, `
		SELECT owner_id, messages FROM conversations WHERE id = ?
	`, string(id)).Scan(&owner, &raw)
	if err == sql.ErrNoRows {
		return domain.ErrConversationNotFound
	}
	if err != nil {
		return errors.Wrap(err, "querying conversation")
	}

	existing, err := decodeMessages(raw)
	if err != nil {
		return err
	}
	updated, err := encodeMessages(append(existing, msgs...))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET messages = ? WHERE id = ?
	`, updated, string(id)); err != nil {
		return errors.Wrap(err, "updating messages")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing append")
	}

	s.notifyConversation(ctx, id)
	s.notifyDirectory(ctx, domain.UserID(owner))
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	var owner string
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id FROM conversations WHERE id = ?
	`, string(id)).Scan(&owner)
	if err == sql.ErrNoRows {
		return domain.ErrConversationNotFound
	}
	if err != nil {
		return errors.Wrap(err, "querying conversation")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, string(id)); err != nil {
		return errors.Wrap(err, "deleting conversation")
	}

	s.notifyDirectory(ctx, domain.UserID(owner))
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
	s.mu.Unlock()

	if conv, err := s.get(ctx, id); err == nil {
		fn(conv, nil)
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

// ─────────────────────────────────────────
// DirectoryStore implementation
// ─────────────────────────────────────────

func (s *Store) WatchOwned(ctx context.Context, owner domain.UserID, fn func([]*domain.Conversation, error)) (domain.CancelFunc, error) {
	s.mu.Lock()
	key := s.nextWatcher
	s.nextWatcher++
	s.dirWatchers[key] = &dirWatcher{owner: owner, fn: fn}
	s.mu.Unlock()

	fn(s.listOwned(ctx, owner))

	cancel := func() {
		s.mu.Lock()
		delete(s.dirWatchers, key)
		s.mu.Unlock()
	}
	return cancel, nil
}

// ─────────────────────────────────────────
// Queries and fan-out
// ─────────────────────────────────────────

func (s *Store) get(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	var owner, title, raw string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, title, created_at, messages
		FROM conversations
		WHERE id = ?
	`, string(id)).Scan(&owner, &title, &createdAt, &raw)
	if err == sql.ErrNoRows {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying conversation")
	}

	messages, err := decodeMessages(raw)
	if err != nil {
		return nil, err
	}
	return &domain.Conversation{
		ID:        id,
		OwnerID:   domain.UserID(owner),
		Title:     title,
		CreatedAt: time.UnixMicro(createdAt),
		Messages:  messages,
	}, nil
}

func (s *Store) listOwned(ctx context.Context, owner domain.UserID) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at, messages
		FROM conversations
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`, string(owner))
	if err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}
	defer rows.Close()

	var out []*domain.Conversation
	for rows.Next() {
		var id, title, raw string
		var createdAt int64
		if err := rows.Scan(&id, &title, &createdAt, &raw); err != nil {
			return nil, errors.Wrap(err, "scanning conversation row")
		}
		messages, err := decodeMessages(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, &domain.Conversation{
			ID:        domain.ConversationID(id),
			OwnerID:   owner,
			Title:     title,
			CreatedAt: time.UnixMicro(createdAt),
			Messages:  messages,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating conversation rows")
	}
	return out, nil
}

func (s *Store) notifyConversation(ctx context.Context, id domain.ConversationID) {
	s.mu.Lock()
	var fns []func(*domain.Conversation, error)
	for _, fn := range s.convWatchers[id] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	if len(fns) == 0 {
		return
	}

	conv, err := s.get(ctx, id)
	for _, fn := range fns {
		fn(conv, err)
	}
}

func (s *Store) notifyDirectory(ctx context.Context, owner domain.UserID) {
	s.mu.Lock()
	var fns []func([]*domain.Conversation, error)
	for _, w := range s.dirWatchers {
		if w.owner == owner {
			fns = append(fns, w.fn)
		}
	}
	s.mu.Unlock()
	if len(fns) == 0 {
		return
	}

	convs, err := s.listOwned(ctx, owner)
	for _, fn := range fns {
		fn(convs, err)
	}
}

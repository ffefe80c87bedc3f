package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mindshift/mindshift/internal/domain"
)

// Store implements domain.DirectoryStore and domain.ConversationStore on
// Firestore. Conversations live in a single collection; the message sequence
// is an array field on the conversation document, appended to with ArrayUnion
// so concurrent appends stay atomic.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for the given project
// (MINDSHIFT_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "creating firestore client")
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) conversationsCol() *firestore.CollectionRef {
	return s.client.Collection("conversations")
}

func (s *Store) conversationDoc(id domain.ConversationID) *firestore.DocumentRef {
	return s.conversationsCol().Doc(string(id))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type conversationDoc struct {
	OwnerID   string       `firestore:"owner_id"`
	Title     string       `firestore:"title"`
	CreatedAt time.Time    `firestore:"created_at,serverTimestamp"`
	Messages  []messageDoc `firestore:"messages"`
}

type messageDoc struct {
	Text      string    `firestore:"text"`
	Sender    string    `firestore:"sender"`
	CreatedAt time.Time `firestore:"created_at"`
}

func toMessageDoc(m domain.Message) messageDoc {
	return messageDoc{Text: m.Text, Sender: string(m.Sender), CreatedAt: m.CreatedAt}
}

func (d conversationDoc) toDomain(id domain.ConversationID) *domain.Conversation {
	messages := make([]domain.Message, 0, len(d.Messages))
	for _, m := range d.Messages {
		messages = append(messages, domain.Message{
			Text:      m.Text,
			Sender:    domain.Sender(m.Sender),
			CreatedAt: m.CreatedAt,
		})
	}
	return &domain.Conversation{
		ID:        id,
		OwnerID:   domain.UserID(d.OwnerID),
		Title:     d.Title,
		CreatedAt: d.CreatedAt,
		Messages:  messages,
	}
}

// ─────────────────────────────────────────
// ConversationStore implementation
// ─────────────────────────────────────────

// CreateConversation writes a new document with a server-assigned creation
// timestamp and returns the assigned id.
func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) (domain.ConversationID, error) {
	messages := make([]messageDoc, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, toMessageDoc(m))
	}

	ref := s.conversationsCol().NewDoc()
	doc := conversationDoc{
		OwnerID:  string(conv.OwnerID),
		Title:    conv.Title,
		Messages: messages,
		// CreatedAt left zero so the serverTimestamp option assigns it.
	}

	if _, err := ref.Create(ctx, doc); err != nil {
		return "", errors.Wrap(err, "firestore CreateConversation")
	}
	return domain.ConversationID(ref.ID), nil
}

// AppendMessages appends to the messages array atomically.
func (s *Store) AppendMessages(ctx context.Context, id domain.ConversationID, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	elems := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		elems = append(elems, toMessageDoc(m))
	}

	_, err := s.conversationDoc(id).Update(ctx, []firestore.Update{
		{Path: "messages", Value: firestore.ArrayUnion(elems...)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrConversationNotFound
		}
		return errors.Wrap(err, "firestore AppendMessages")
	}
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	if _, err := s.conversationDoc(id).Delete(ctx); err != nil {
		return errors.Wrap(err, "firestore DeleteConversation")
	}
	return nil
}

// WatchConversation re-emits the canonical document on every change until the
// returned cancel handle is called. A deleted document is reported as a nil
// conversation.
func (s *Store) WatchConversation(ctx context.Context, id domain.ConversationID, fn func(*domain.Conversation, error)) (domain.CancelFunc, error) {
	ctx, cancel := context.WithCancel(ctx)
	iter := s.conversationDoc(id).Snapshots(ctx)

	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled {
					return
				}
				fn(nil, errors.Wrap(err, "conversation snapshot"))
				return
			}
			if !snap.Exists() {
				fn(nil, nil)
				continue
			}
			var doc conversationDoc
			if err := snap.DataTo(&doc); err != nil {
				fn(nil, errors.Wrap(err, "decoding conversationDoc"))
				continue
			}
			fn(doc.toDomain(id), nil)
		}
	}()

	return domain.CancelFunc(cancel), nil
}

// ─────────────────────────────────────────
// DirectoryStore implementation
// ─────────────────────────────────────────

// WatchOwned re-emits the owner's full conversation set, newest first, on
// every change to any matching document.
func (s *Store) WatchOwned(ctx context.Context, owner domain.UserID, fn func([]*domain.Conversation, error)) (domain.CancelFunc, error) {
	ctx, cancel := context.WithCancel(ctx)
	q := s.conversationsCol().
		Where("owner_id", "==", string(owner)).
		OrderBy("created_at", firestore.Desc)
	iter := q.Snapshots(ctx)

	go func() {
		defer iter.Stop()
		for {
			qsnap, err := iter.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled {
					return
				}
				fn(nil, errors.Wrap(err, "directory snapshot"))
				return
			}
			fn(collectConversations(qsnap))
		}
	}()

	return domain.CancelFunc(cancel), nil
}

func collectConversations(qsnap *firestore.QuerySnapshot) ([]*domain.Conversation, error) {
	out := make([]*domain.Conversation, 0, qsnap.Size)
	for {
		snap, err := qsnap.Documents.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "iterating directory snapshot")
		}
		var doc conversationDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, errors.Wrap(err, "decoding conversationDoc")
		}
		out = append(out, doc.toDomain(domain.ConversationID(snap.Ref.ID)))
	}
}

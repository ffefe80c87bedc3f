package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mindshift/mindshift/internal/app/client"
	"github.com/mindshift/mindshift/internal/app/session"
	"github.com/mindshift/mindshift/internal/domain"
)

// TokenVerifier authenticates a bearer token into a user.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*domain.User, error)
}

// ClientFactory builds and starts a chat client for a verified user. The
// context is the server's base context, not a request context: the client's
// subscriptions outlive individual requests.
type ClientFactory func(ctx context.Context, user *domain.User) (*client.Client, error)

// Server is the backend-for-frontend for the web client: one chat client per
// authenticated user, JSON operations plus an SSE stream of state changes.
type Server struct {
	baseCtx   context.Context
	verifier  TokenVerifier
	newClient ClientFactory

	mu      sync.Mutex
	clients map[domain.UserID]*clientEntry
}

// clientEntry fans one client's state changes out to any number of event
// stream subscribers.
type clientEntry struct {
	client *client.Client

	mu      sync.Mutex
	nextSub int
	subs    map[int]chan client.State
}

func NewServer(ctx context.Context, verifier TokenVerifier, newClient ClientFactory) http.Handler {
	s := &Server{
		baseCtx:   ctx,
		verifier:  verifier,
		newClient: newClient,
		clients:   make(map[domain.UserID]*clientEntry),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)

	// /state          → GET: full client state
	// /messages       → POST: send a message
	// /conversations  → POST: start a new blank session
	// /conversations/{id}        → DELETE
	// /conversations/{id}/select → POST
	// /events         → GET: SSE stream of state changes
	// /signout        → POST
	mux.Handle("/state", s.authed(s.handleState))
	mux.Handle("/messages", s.authed(s.handleSendMessage))
	mux.Handle("/conversations", s.authed(s.handleConversations))
	mux.Handle("/conversations/", s.authed(s.handleConversationWithID))
	mux.Handle("/events", s.authed(s.handleEvents))
	mux.Handle("/signout", s.authed(s.handleSignOut))

	return chainMiddlewares(mux, withRequestID, withLogging, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type stateResponse struct {
	User          *userResponse          `json:"user"`
	Conversations []conversationResponse `json:"conversations"`
	Session       sessionResponse        `json:"session"`
}

type userResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

type conversationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	ActiveConversationID string            `json:"active_conversation_id,omitempty"`
	Messages             []messageResponse `json:"messages"`
	Pending              bool              `json:"pending"`
}

type messageResponse struct {
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type selectConversationRequest struct {
	ID string `json:"id"`
}

// ─────────────────────────────────────────────
// Auth and client registry
// ─────────────────────────────────────────────

// authed resolves the bearer token into a per-user chat client and hands it
// to the wrapped handler.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, *clientEntry)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		user, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}

		entry, err := s.entryFor(user)
		if err != nil {
			internalError(w, err)
			return
		}
		next(w, r, entry)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func (s *Server) entryFor(user *domain.User) (*clientEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.clients[user.UID]; ok {
		return entry, nil
	}

	c, err := s.newClient(s.baseCtx, user)
	if err != nil {
		return nil, errors.Wrapf(err, "building client for %s", user.UID)
	}
	entry := &clientEntry{client: c, subs: make(map[int]chan client.State)}
	c.OnChange(entry.broadcast)
	s.clients[user.UID] = entry
	return entry, nil
}

func (s *Server) dropClient(uid domain.UserID) {
	s.mu.Lock()
	entry, ok := s.clients[uid]
	if ok {
		delete(s.clients, uid)
	}
	s.mu.Unlock()
	if ok {
		entry.client.Stop()
	}
}

func (e *clientEntry) broadcast(state client.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- state:
		default:
			// Slow subscriber; it will catch up from a later state.
		}
	}
}

func (e *clientEntry) subscribe() (<-chan client.State, func()) {
	ch := make(chan client.State, 8)
	e.mu.Lock()
	key := e.nextSub
	e.nextSub++
	e.subs[key] = ch
	e.mu.Unlock()

	return ch, func() {
		e.mu.Lock()
		delete(e.subs, key)
		e.mu.Unlock()
	}
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, entry *clientEntry) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(entry.client.State()))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, entry *clientEntry) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if err := entry.client.Send(r.Context(), req.Text); err != nil {
		writeClientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(entry.client.State()))
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, entry *clientEntry) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if err := entry.client.StartNew(r.Context()); err != nil {
		writeClientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(entry.client.State()))
}

// /conversations/{id} or /conversations/{id}/select
func (s *Server) handleConversationWithID(w http.ResponseWriter, r *http.Request, entry *clientEntry) {
	path := strings.TrimPrefix(r.URL.Path, "/conversations/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := domain.ConversationID(parts[0])
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := entry.client.Delete(r.Context(), id); err != nil {
			writeClientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toStateResponse(entry.client.State()))

	case len(parts) == 2 && parts[1] == "select" && r.Method == http.MethodPost:
		if err := entry.client.Select(r.Context(), id); err != nil {
			writeClientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toStateResponse(entry.client.State()))

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request, entry *clientEntry) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	state := entry.client.State()
	if err := entry.client.SignOut(r.Context()); err != nil {
		writeClientError(w, err)
		return
	}
	if state.User != nil {
		s.dropClient(state.User.UID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// handleEvents streams state changes as server-sent events. The initial state
// is sent immediately; the stream ends when the request context does.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, entry *clientEntry) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		internalError(w, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, unsubscribe := entry.subscribe()
	defer unsubscribe()

	writeEvent(w, entry.client.State())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case state := <-updates:
			writeEvent(w, state)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, state client.State) {
	payload, err := json.Marshal(toStateResponse(state))
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}

// ─────────────────────────────────────────────
// Response helpers
// ─────────────────────────────────────────────

func toStateResponse(state client.State) stateResponse {
	resp := stateResponse{
		Conversations: make([]conversationResponse, 0, len(state.Directory)),
		Session:       toSessionResponse(state.Session),
	}
	if state.User != nil {
		resp.User = &userResponse{UID: string(state.User.UID), Email: state.User.Email}
	}
	for _, c := range state.Directory {
		resp.Conversations = append(resp.Conversations, conversationResponse{
			ID:        string(c.ID),
			Title:     c.Title,
			CreatedAt: c.CreatedAt,
		})
	}
	return resp
}

func toSessionResponse(snap session.Snapshot) sessionResponse {
	messages := make([]messageResponse, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		messages = append(messages, messageResponse{
			Text:      m.Text,
			Sender:    string(m.Sender),
			CreatedAt: m.CreatedAt,
		})
	}
	return sessionResponse{
		ActiveConversationID: string(snap.ActiveID),
		Messages:             messages,
		Pending:              snap.Pending,
	}
}

func writeClientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrExchangeInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a message is already being processed"})
	case errors.Is(err, client.ErrSignedOut):
		unauthorized(w, "signed out")
	case errors.Is(err, domain.ErrConversationNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
	default:
		internalError(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
}

func internalError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

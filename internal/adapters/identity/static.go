package identity

import (
	"context"
	"sync"

	"github.com/mindshift/mindshift/internal/domain"
)

// StaticVerifier accepts any bearer token and reports a fixed user. Local
// mode only; it performs no authentication.
type StaticVerifier struct {
	user domain.User
}

func NewStaticVerifier(user domain.User) *StaticVerifier {
	return &StaticVerifier{user: user}
}

func (v *StaticVerifier) Verify(ctx context.Context, idToken string) (*domain.User, error) {
	u := v.user
	return &u, nil
}

// Session is an in-process identity session pinned to one user. It implements
// domain.Identity: CurrentUser returns nil after sign-out and registered
// callbacks are notified of the change. Used directly in local mode and as
// the session half of the Firebase adapter.
type Session struct {
	mu       sync.Mutex
	user     *domain.User
	nextID   int
	watchers map[int]func(*domain.User)

	// signOut performs the backend half of a sign-out, if any.
	signOut func(ctx context.Context, user *domain.User) error
}

// NewSession pins a session to the given user with no backend sign-out.
func NewSession(user *domain.User) *Session {
	return &Session{user: user, watchers: make(map[int]func(*domain.User))}
}

func (s *Session) CurrentUser() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) OnChange(fn func(*domain.User)) domain.CancelFunc {
	s.mu.Lock()
	key := s.nextID
	s.nextID++
	s.watchers[key] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, key)
		s.mu.Unlock()
	}
}

// SignOut clears the session and notifies watchers. The backend sign-out (if
// configured) runs first; its failure is reported and leaves the session
// signed in, matching "surface a notice, no retry".
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	user := s.user
	backend := s.signOut
	s.mu.Unlock()
	if user == nil {
		return nil
	}

	if backend != nil {
		if err := backend(ctx, user); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.user = nil
	var fns []func(*domain.User)
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(nil)
	}
	return nil
}

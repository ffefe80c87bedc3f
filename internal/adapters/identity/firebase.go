package identity

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"

	"github.com/mindshift/mindshift/internal/domain"
)

// Verifier authenticates Firebase ID tokens for the given project.
type Verifier struct {
	auth *auth.Client
}

func NewVerifier(ctx context.Context, projectID string) (*Verifier, error) {
	if projectID == "" {
		return nil, errors.New("projectID is required for Firebase identity")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, errors.Wrap(err, "creating firebase app")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating firebase auth client")
	}

	return &Verifier{auth: client}, nil
}

// Verify checks an ID token and returns the authenticated user.
func (v *Verifier) Verify(ctx context.Context, idToken string) (*domain.User, error) {
	token, err := v.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, errors.Wrap(err, "verifying id token")
	}

	email, _ := token.Claims["email"].(string)
	return &domain.User{UID: domain.UserID(token.UID), Email: email}, nil
}

// Session pins an identity session to a verified user. Sign-out revokes the
// user's refresh tokens before clearing the local session.
func (v *Verifier) Session(user *domain.User) *Session {
	s := NewSession(user)
	s.signOut = func(ctx context.Context, u *domain.User) error {
		return errors.Wrap(v.auth.RevokeRefreshTokens(ctx, string(u.UID)), "revoking refresh tokens")
	}
	return s
}

package auth

import (
	"context"
	"fmt"

	"github.com/nast-payroll/portal/internal/api"
	"github.com/nast-payroll/portal/internal/session"
)

// Backend is the authentication surface of the payroll API.
type Backend interface {
	Login(ctx context.Context, creds Credentials) (session.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Poster sends JSON POST requests to the backend.
type Poster interface {
	Post(ctx context.Context, path string, body any, opts ...api.Option) (*api.Response, error)
}

// APIBackend implements Backend over the api client. Login opts out of
// session invalidation since it has already cleared the slot.
type APIBackend struct {
	Client Poster
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Username        string `json:"username"`
	Password        string `json:"password"`
}

// Login implements Backend.
func (b APIBackend) Login(ctx context.Context, creds Credentials) (session.Session, error) {
	resp, err := b.Client.Post(ctx, "/auth/login", loginRequest{
		UsernameOrEmail: creds.Username,
		Username:        creds.Username,
		Password:        creds.Password,
	}, api.SkipInvalidation())
	if err != nil {
		return session.Session{}, err
	}
	var sess session.Session
	if err := resp.Decode(&sess); err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return sess, nil
}

// ForgotPassword implements Backend.
func (b APIBackend) ForgotPassword(ctx context.Context, email string) error {
	_, err := b.Client.Post(ctx, "/auth/forgot-password", map[string]string{"email": email})
	return err
}

// ResetPassword implements Backend.
func (b APIBackend) ResetPassword(ctx context.Context, token, newPassword string) error {
	_, err := b.Client.Post(ctx, "/auth/reset-password", map[string]string{
		"token":       token,
		"newPassword": newPassword,
	})
	return err
}

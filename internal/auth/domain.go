package auth

import (
	"errors"

	"github.com/nast-payroll/portal/internal/session"
)

// State is the lifecycle position of one browser.
type State string

const (
	StateAnonymous      State = "ANONYMOUS"
	StateAuthenticating State = "AUTHENTICATING"
	StateAuthenticated  State = "AUTHENTICATED"
)

// Messages shown on the login and recovery pages.
const (
	MsgInvalidCredentials = "Invalid username or password."
	MsgLoginFailed        = "An error occurred during login."
	MsgConnection         = "Server connection error. Check that the payroll backend is reachable."
	MsgRoleNotRecognized  = "Access Denied: Role not recognized."
	MsgSessionExpired     = "Your session has expired. Please log in again."
	MsgRecoveryFailed     = "We could not process the request. Please try again."
	MsgRecoverySent       = "If an account matches that email, a reset link is on its way."
	MsgPasswordReset      = "Your password has been reset. Please sign in."
)

var (
	// ErrInvalidCredentials is returned when the backend answers 401 to a login.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrRoleNotRecognized is returned when the login payload carries no
	// role, or one outside the three portal areas.
	ErrRoleNotRecognized = errors.New("auth: role not recognized")
	// ErrMalformedResponse is returned when a backend payload cannot be decoded.
	ErrMalformedResponse = errors.New("auth: malformed backend response")
)

// Credentials is the login form.
type Credentials struct {
	Username string `validate:"required,max=254"`
	Password string `validate:"required,max=256"`
}

// LoginResult is a completed login.
type LoginResult struct {
	Session     session.Session
	Destination string
}

// UserError carries the message a page shows for a failed operation.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// MessageFor returns the user facing text of err.
func MessageFor(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) && userErr.Message != "" {
		return userErr.Message
	}
	return MsgLoginFailed
}

// Package auth owns the session lifecycle: login, logout and expiry.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nast-payroll/portal/internal/api"
	"github.com/nast-payroll/portal/internal/audit"
	"github.com/nast-payroll/portal/internal/browser"
	"github.com/nast-payroll/portal/internal/nav"
	"github.com/nast-payroll/portal/internal/rbac"
	"github.com/nast-payroll/portal/internal/session"
)

// SessionStore is the session slot of the current browser.
type SessionStore interface {
	Read(ctx context.Context) (*session.Session, bool)
	Write(ctx context.Context, sess session.Session) error
	Clear(ctx context.Context) error
	Take(ctx context.Context) (*session.Session, bool, error)
}

// Revoker asks the backend to drop a token after logout.
type Revoker interface {
	Revoke(ctx context.Context, token string, userID int64) error
}

// LoginObserver receives login outcomes.
type LoginObserver interface {
	ObserveLogin(outcome string)
}

// ServiceConfig collects Service dependencies. Recorder, Revoker and
// Observer are optional.
type ServiceConfig struct {
	Backend  Backend
	Sessions SessionStore
	Recorder audit.Recorder
	Revoker  Revoker
	Observer LoginObserver
	Logger   *slog.Logger
}

// Service is the only component that creates or destroys a Session.
type Service struct {
	backend  Backend
	sessions SessionStore
	recorder audit.Recorder
	revoker  Revoker
	observer LoginObserver
	logger   *slog.Logger

	logins   singleflight.Group
	mu       sync.Mutex
	inflight map[string]int
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = audit.Noop{}
	}
	return &Service{
		backend:  cfg.Backend,
		sessions: cfg.Sessions,
		recorder: recorder,
		revoker:  cfg.Revoker,
		observer: cfg.Observer,
		logger:   logger,
		inflight: make(map[string]int),
	}
}

// Login exchanges creds for a Session, stores it and navigates to the
// dashboard of its role. Any stored Session is dropped first. Identical
// submissions racing from one browser share a single backend call.
func (s *Service) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	st := browser.StorageFromContext(ctx)
	if st == nil {
		return LoginResult{}, session.ErrNoStorage
	}
	if err := s.sessions.Clear(ctx); err != nil {
		return LoginResult{}, err
	}

	s.begin(st.ID)
	defer s.end(st.ID)

	v, err, shared := s.logins.Do(loginKey(st.ID, creds), func() (any, error) {
		callCtx, cancel := detached(ctx)
		defer cancel()
		return s.backend.Login(callCtx, creds)
	})
	if shared {
		s.logger.Debug("login shared with concurrent submission", slog.String("browser_id", st.ID))
	}
	if err != nil {
		return LoginResult{}, s.loginFailure(creds, err)
	}

	sess := v.(session.Session)
	if !sess.Resolved() {
		s.observe("role_missing")
		s.logger.Warn("login without role", slog.String("username", creds.Username))
		return LoginResult{}, &UserError{Message: MsgRoleNotRecognized, Err: ErrRoleNotRecognized}
	}
	dest, ok := rbac.DashboardFor(sess.Role.String())
	if !ok {
		s.observe("role_unknown")
		s.logger.Warn("login with unknown role", slog.String("username", creds.Username), slog.String("role", sess.Role.String()))
		return LoginResult{}, &UserError{Message: MsgRoleNotRecognized, Err: ErrRoleNotRecognized}
	}

	if err := s.sessions.Write(ctx, sess); err != nil {
		return LoginResult{}, err
	}
	nav.Navigate(ctx, dest)
	s.observe("success")
	s.recorder.Record(ctx, audit.Event{
		BrowserID: st.ID,
		UserID:    sess.UserID,
		Role:      sess.Role.String(),
		Kind:      audit.KindLogin,
	})
	s.logger.Info("login", slog.Int64("user_id", sess.UserID), slog.String("role", sess.Role.String()))
	return LoginResult{Session: sess, Destination: dest}, nil
}

func (s *Service) loginFailure(creds Credentials, err error) error {
	var statusErr *api.StatusError
	switch {
	case errors.As(err, &statusErr):
		if statusErr.Status == http.StatusUnauthorized {
			s.observe("invalid_credentials")
			return &UserError{Message: MsgInvalidCredentials, Err: ErrInvalidCredentials}
		}
		s.observe("rejected")
		s.logger.Warn("login rejected", slog.String("username", creds.Username), slog.Int("status", statusErr.Status))
		msg := statusErr.Message
		if msg == "" {
			msg = MsgLoginFailed
		}
		return &UserError{Message: msg, Err: err}
	case errors.Is(err, ErrMalformedResponse):
		s.observe("malformed")
		s.logger.Error("login response", slog.Any("error", err))
		return &UserError{Message: MsgLoginFailed, Err: err}
	default:
		s.observe("unreachable")
		s.logger.Error("login transport", slog.Any("error", err))
		return &UserError{Message: MsgConnection, Err: err}
	}
}

// Logout drops the stored Session and navigates to the landing page. The
// token is handed to the Revoker when one is configured; revocation failures
// never block the local logout.
func (s *Service) Logout(ctx context.Context) error {
	sess, had, err := s.sessions.Take(ctx)
	if err != nil {
		return err
	}
	nav.Navigate(ctx, nav.Landing)
	if !had {
		return nil
	}
	if s.revoker != nil && sess.Token != "" {
		if err := s.revoker.Revoke(ctx, sess.Token, sess.UserID); err != nil {
			s.logger.Warn("enqueue token revoke", slog.Int64("user_id", sess.UserID), slog.Any("error", err))
		}
	}
	s.recorder.Record(ctx, audit.Event{
		BrowserID: browserID(ctx),
		UserID:    sess.UserID,
		Role:      sess.Role.String(),
		Kind:      audit.KindLogout,
	})
	s.logger.Info("logout", slog.Int64("user_id", sess.UserID))
	return nil
}

// HandleExpiry drops the stored Session after the backend rejected its
// credentials and navigates to the expired landing page unless the request
// is already on the landing page. Repeated calls within one request
// navigate at most once.
func (s *Service) HandleExpiry(ctx context.Context) {
	sess, had, err := s.sessions.Take(ctx)
	if err != nil && !errors.Is(err, session.ErrNoStorage) {
		s.logger.Error("clear expired session", slog.Any("error", err))
	}
	if nav.CurrentPath(ctx) != nav.Landing {
		nav.Navigate(ctx, nav.ExpiredURL)
	}
	if !had {
		return
	}
	s.recorder.Record(ctx, audit.Event{
		BrowserID: browserID(ctx),
		UserID:    sess.UserID,
		Role:      sess.Role.String(),
		Kind:      audit.KindExpired,
	})
	s.logger.Info("session expired", slog.Int64("user_id", sess.UserID))
}

// ClearStale drops any stored Session without navigating. The landing page
// uses it when it renders the expiry message.
func (s *Service) ClearStale(ctx context.Context) error {
	_, _, err := s.sessions.Take(ctx)
	return err
}

// Current returns the stored Session.
func (s *Service) Current(ctx context.Context) (*session.Session, bool) {
	return s.sessions.Read(ctx)
}

// State reports where the browser bound to ctx is in the lifecycle.
func (s *Service) State(ctx context.Context) State {
	if id := browserID(ctx); id != "" {
		s.mu.Lock()
		n := s.inflight[id]
		s.mu.Unlock()
		if n > 0 {
			return StateAuthenticating
		}
	}
	if _, ok := s.sessions.Read(ctx); ok {
		return StateAuthenticated
	}
	return StateAnonymous
}

// ForgotPassword asks the backend to mail a reset link.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if err := s.backend.ForgotPassword(ctx, email); err != nil {
		return s.recoveryFailure("forgot password", err)
	}
	return nil
}

// ResetPassword sets a new password using a mailed reset token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.backend.ResetPassword(ctx, token, newPassword); err != nil {
		return s.recoveryFailure("reset password", err)
	}
	return nil
}

func (s *Service) recoveryFailure(op string, err error) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		s.logger.Warn(op, slog.Int("status", statusErr.Status))
		msg := statusErr.Message
		if msg == "" {
			msg = MsgRecoveryFailed
		}
		return &UserError{Message: msg, Err: err}
	}
	s.logger.Error(op, slog.Any("error", err))
	return &UserError{Message: MsgConnection, Err: err}
}

func (s *Service) begin(id string) {
	s.mu.Lock()
	s.inflight[id]++
	s.mu.Unlock()
}

func (s *Service) end(id string) {
	s.mu.Lock()
	if s.inflight[id] <= 1 {
		delete(s.inflight, id)
	} else {
		s.inflight[id]--
	}
	s.mu.Unlock()
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveLogin(outcome)
	}
}

func browserID(ctx context.Context) string {
	if st := browser.StorageFromContext(ctx); st != nil {
		return st.ID
	}
	return ""
}

// detached keeps the values and deadline of ctx but drops its cancellation.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	out := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(out, deadline)
	}
	return out, func() {}
}

func loginKey(browserID string, creds Credentials) string {
	sum := sha256.Sum256([]byte(creds.Username + "\x00" + creds.Password))
	return browserID + ":" + hex.EncodeToString(sum[:])
}

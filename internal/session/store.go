package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nast-payroll/portal/internal/browser"
)

// StorageKey is the fixed slot the serialized Session lives under.
const StorageKey = "user_session"

// ErrNoStorage is returned when a mutation runs outside a browser request.
var ErrNoStorage = errors.New("session: browser record missing from context")

// Persister writes a browser record through to durable storage.
type Persister interface {
	Persist(ctx context.Context, st *browser.Storage) error
}

// Store reads and writes the Session slot of the browser bound to a context.
type Store struct {
	persister Persister
	logger    *slog.Logger
}

// NewStore constructs a Store.
func NewStore(persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{persister: persister, logger: logger}
}

// Read returns the stored Session. Missing, unparsable and role-less values
// all read as absent.
func (s *Store) Read(ctx context.Context) (*Session, bool) {
	st := browser.StorageFromContext(ctx)
	if st == nil {
		return nil, false
	}
	return s.decode(st.ID, st.Get(StorageKey))
}

func (s *Store) decode(browserID, raw string) (*Session, bool) {
	if raw == "" {
		return nil, false
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		s.logger.Warn("session parse error", slog.String("browser_id", browserID), slog.Any("error", err))
		return nil, false
	}
	if !sess.Resolved() {
		s.logger.Warn("session without role", slog.String("browser_id", browserID))
		return nil, false
	}
	return &sess, true
}

// Write replaces the stored Session and persists it before returning.
func (s *Store) Write(ctx context.Context, sess Session) error {
	st := browser.StorageFromContext(ctx)
	if st == nil {
		return ErrNoStorage
	}
	sess.Role = Role(NormalizeRole(string(sess.Role)))
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	st.Set(StorageKey, string(data))
	return s.persist(ctx, st)
}

// Clear removes the stored Session and persists the removal before returning.
func (s *Store) Clear(ctx context.Context) error {
	st := browser.StorageFromContext(ctx)
	if st == nil {
		return ErrNoStorage
	}
	st.Delete(StorageKey)
	return s.persist(ctx, st)
}

// Take clears the stored Session and returns what was there. Concurrent
// callers on the same browser see the Session at most once between them.
func (s *Store) Take(ctx context.Context) (*Session, bool, error) {
	st := browser.StorageFromContext(ctx)
	if st == nil {
		return nil, false, ErrNoStorage
	}
	raw, had := st.Take(StorageKey)
	if err := s.persist(ctx, st); err != nil {
		return nil, false, err
	}
	if !had {
		return nil, false, nil
	}
	sess, ok := s.decode(st.ID, raw)
	return sess, ok, nil
}

func (s *Store) persist(ctx context.Context, st *browser.Storage) error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Persist(ctx, st)
}

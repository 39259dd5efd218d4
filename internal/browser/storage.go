// Package browser keeps the per-browser key/value record the portal uses in
// place of client-side local storage. Records live in Redis and are addressed
// by an HttpOnly cookie.
package browser

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlashMessage represents a one-time notification stored with the record.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Manager loads and persists browser records backed by Redis.
type Manager struct {
	client     redis.UniversalClient
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Storage is the record of a single browser. It is safe for concurrent use so
// that fan-out page loads may mutate it from several goroutines. Only the
// fields changed through a Storage are written back.
type Storage struct {
	ID string

	mu           sync.Mutex
	values       map[string]string
	flashes      []FlashMessage
	changed      map[string]struct{}
	removed      map[string]struct{}
	flashesDirty bool
	reset        bool
	stored       bool
	isNew        bool
	destroyed    bool
}

// Redis hash layout of a record.
const (
	valueFieldPrefix = "v:"
	flashesField     = "flashes"
	createdField     = "created_at"
)

// NewManager constructs a Manager.
func NewManager(client redis.UniversalClient, cookieName string, secret string, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load returns the record addressed by the request cookie, or a fresh one.
// A record that can no longer be decoded is replaced by an empty record under
// the same id.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Storage, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return m.newStorage(), nil
		}
		return nil, err
	}

	st := m.newStorage()
	st.ID = cookie.Value
	fields, err := m.client.HGetAll(ctx, m.redisKey(cookie.Value)).Result()
	if err != nil {
		if strings.HasPrefix(err.Error(), "WRONGTYPE") {
			st.reset = true
			return st, nil
		}
		return nil, err
	}
	if len(fields) == 0 {
		return st, nil
	}

	for field, value := range fields {
		switch {
		case strings.HasPrefix(field, valueFieldPrefix):
			st.values[strings.TrimPrefix(field, valueFieldPrefix)] = value
		case field == flashesField:
			if err := json.Unmarshal([]byte(value), &st.flashes); err != nil {
				st.flashes = nil
				st.flashesDirty = true
			}
		}
	}
	st.stored = true
	st.isNew = false
	return st, nil
}

// Persist writes the record to Redis immediately.
func (m *Manager) Persist(ctx context.Context, st *Storage) error {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return m.persistLocked(ctx, st)
}

// Commit persists pending changes and writes the cookie header.
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, st *Storage) error {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.destroyed {
		if err := m.client.Del(ctx, m.redisKey(st.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     m.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if st.pendingLocked() {
		if err := m.persistLocked(ctx, st); err != nil {
			return err
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    st.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(m.ttl),
	})
	st.isNew = false
	return nil
}

// Destroy marks the record for deletion on commit.
func (m *Manager) Destroy(st *Storage) {
	if st == nil {
		return
	}
	st.mu.Lock()
	st.destroyed = true
	st.mu.Unlock()
}

// TTL exposes the configured record lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// CookieName returns the cookie identifier used for browser records.
func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) persistLocked(ctx context.Context, st *Storage) error {
	if st.ID == "" {
		st.ID = m.generateID()
	}
	if !st.pendingLocked() {
		return nil
	}
	key := m.redisKey(st.ID)

	set := make([]any, 0, 2*len(st.changed)+4)
	for k := range st.changed {
		set = append(set, valueFieldPrefix+k, st.values[k])
	}
	del := make([]string, 0, len(st.removed)+1)
	for k := range st.removed {
		del = append(del, valueFieldPrefix+k)
	}
	if st.flashesDirty {
		if len(st.flashes) == 0 {
			del = append(del, flashesField)
		} else {
			data, err := json.Marshal(st.flashes)
			if err != nil {
				return err
			}
			set = append(set, flashesField, data)
		}
	}
	if !st.stored {
		set = append(set, createdField, time.Now().UTC().Format(time.RFC3339))
	}

	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if st.reset {
			pipe.Del(ctx, key)
		}
		if len(del) > 0 {
			pipe.HDel(ctx, key, del...)
		}
		if len(set) > 0 {
			pipe.HSet(ctx, key, set...)
		}
		pipe.Expire(ctx, key, m.ttl)
		return nil
	})
	if err != nil {
		return err
	}
	st.changed = make(map[string]struct{})
	st.removed = make(map[string]struct{})
	st.flashesDirty = false
	st.reset = false
	st.stored = true
	return nil
}

func (s *Storage) pendingLocked() bool {
	return !s.stored || s.reset || s.flashesDirty || len(s.changed) > 0 || len(s.removed) > 0
}

// Get retrieves a value.
func (s *Storage) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set stores a value, replacing any previous one.
func (s *Storage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.changed[key] = struct{}{}
	delete(s.removed, key)
}

// Delete removes a value.
func (s *Storage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return
	}
	s.forgetLocked(key)
}

// Take removes a value and returns it. Of several concurrent callers only
// one observes the value.
func (s *Storage) Take(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", false
	}
	s.forgetLocked(key)
	return v, true
}

func (s *Storage) forgetLocked(key string) {
	delete(s.values, key)
	delete(s.changed, key)
	s.removed[key] = struct{}{}
}

// AddFlash queues a flash message.
func (s *Storage) AddFlash(msg FlashMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes = append(s.flashes, msg)
	s.flashesDirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Storage) PopFlash() *FlashMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.flashesDirty = true
	return &msg
}

// IsNew reports whether the browser has not been issued a cookie yet.
func (s *Storage) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isNew
}

func (m *Manager) newStorage() *Storage {
	return &Storage{
		ID:      m.generateID(),
		values:  make(map[string]string),
		changed: make(map[string]struct{}),
		removed: make(map[string]struct{}),
		isNew:   true,
	}
}

func (m *Manager) redisKey(id string) string {
	return "portal:browser:" + id
}

func (m *Manager) generateID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(m.secret) > 0 {
		for i := range b {
			b[i] ^= m.secret[i%len(m.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

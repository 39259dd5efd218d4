package browser

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

const (
	// CSRFStorageKey is the key used to persist tokens in the browser record.
	CSRFStorageKey = "csrf_token"
	// CSRFFormField is the form field name carrying the CSRF token.
	CSRFFormField = "csrf_token"
	// CSRFHeader carries the token for htmx and fetch callers.
	CSRFHeader = "X-CSRF-Token"
)

var (
	// ErrCSRFTokenMissing occurs when the CSRF token is missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// CSRFManager issues and verifies CSRF tokens bound to a browser record.
// A token is "<nonce>.<mac>" where mac signs the record id and the nonce, so a
// token never verifies against another browser's record.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// EnsureToken returns the record's token, issuing a new one when none is
// stored or the stored one was signed for a different record.
func (m *CSRFManager) EnsureToken(ctx context.Context, st *Storage) (string, error) {
	if st == nil {
		return "", errors.New("browser record missing")
	}
	if token := st.Get(CSRFStorageKey); token != "" && m.signedFor(st.ID, token) {
		return token, nil
	}
	return m.Rotate(ctx, st)
}

// Rotate replaces the record's token. It is called whenever the signed-in
// identity of the browser changes.
func (m *CSRFManager) Rotate(_ context.Context, st *Storage) (string, error) {
	if st == nil {
		return "", errors.New("browser record missing")
	}
	nonce := make([]byte, 18)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(nonce)
	token := encoded + "." + m.sign(st.ID, encoded)
	st.Set(CSRFStorageKey, token)
	return token, nil
}

// VerifyToken compares the supplied token with the stored one.
func (m *CSRFManager) VerifyToken(ctx context.Context, st *Storage, token string) error {
	if st == nil {
		return ErrCSRFTokenMissing
	}
	expected := st.Get(CSRFStorageKey)
	if expected == "" || token == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(expected), []byte(token)) || !m.signedFor(st.ID, token) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (m *CSRFManager) signedFor(id, token string) bool {
	nonce, mac, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return false
	}
	return hmac.Equal([]byte(mac), []byte(m.sign(id, nonce)))
}

func (m *CSRFManager) sign(id, nonce string) string {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(id))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

package api

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/nast-payroll/portal/internal/session"
)

// TokenSource yields the raw bearer token for the request context.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// SessionReader exposes the stored session of the current browser.
type SessionReader interface {
	Read(ctx context.Context) (*session.Session, bool)
}

// SessionTokens reads the token of the session stored for the browser bound
// to the request context.
type SessionTokens struct {
	Sessions SessionReader
}

// Token implements TokenSource.
func (s SessionTokens) Token(ctx context.Context) (string, bool) {
	if s.Sessions == nil {
		return "", false
	}
	sess, ok := s.Sessions.Read(ctx)
	if !ok {
		return "", false
	}
	return sess.Token, true
}

// bearerToken turns a stored token string into an attachable credential.
// Blank tokens, the literals "undefined" and "null", and JWTs whose exp has
// passed are rejected.
func bearerToken(raw string) (*oauth2.Token, bool) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "", "undefined", "null":
		return nil, false
	}
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if exp, ok := tokenExpiry(raw); ok {
		tok.Expiry = exp
	}
	if !tok.Valid() {
		return nil, false
	}
	return tok, true
}

// tokenExpiry reads the exp claim of a JWT. The signature is not verified.
func tokenExpiry(raw string) (time.Time, bool) {
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Package nav records the navigation a request decides on and applies it to
// the response, replacing whatever the page handler tried to render.
package nav

import (
	"context"
	"strings"
	"sync"
)

const (
	// Landing is the public entry page.
	Landing = "/"
	// ExpiredURL is the landing page with the expiry marker the login form
	// turns into a message.
	ExpiredURL = "/?expired=true"
)

// Navigator holds the single pending navigation of one request.
type Navigator struct {
	mu      sync.Mutex
	current string
	target  string
}

// New returns a Navigator for a request currently on path.
func New(current string) *Navigator {
	if current == "" {
		current = Landing
	}
	return &Navigator{current: current}
}

// Navigate records target unless a navigation is already pending. Asking for
// the landing page while already on it is a no-op. It reports whether target
// was recorded.
func (n *Navigator) Navigate(target string) bool {
	if n == nil || target == "" {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.target != "" {
		return false
	}
	if pathOf(target) == Landing && n.current == Landing {
		return false
	}
	n.target = target
	return true
}

// Target returns the pending navigation, if any.
func (n *Navigator) Target() (string, bool) {
	if n == nil {
		return "", false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target, n.target != ""
}

// Current returns the path the request was made for.
func (n *Navigator) Current() string {
	if n == nil {
		return ""
	}
	return n.current
}

func pathOf(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		return Landing
	}
	return target
}

type contextKey struct{}

// WithNavigator stores n in ctx.
func WithNavigator(ctx context.Context, n *Navigator) context.Context {
	return context.WithValue(ctx, contextKey{}, n)
}

// FromContext returns the Navigator bound to ctx, or nil.
func FromContext(ctx context.Context) *Navigator {
	if ctx == nil {
		return nil
	}
	n, _ := ctx.Value(contextKey{}).(*Navigator)
	return n
}

// Navigate records target on the Navigator bound to ctx.
func Navigate(ctx context.Context, target string) bool {
	return FromContext(ctx).Navigate(target)
}

// CurrentPath returns the request path known to the Navigator bound to ctx.
func CurrentPath(ctx context.Context) string {
	return FromContext(ctx).Current()
}

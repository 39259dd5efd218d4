package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nast-payroll/portal/internal/nav"
	"github.com/nast-payroll/portal/internal/session"
)

// SessionReader exposes the stored session of the current browser.
type SessionReader interface {
	Read(ctx context.Context) (*session.Session, bool)
}

// DecisionObserver receives every gate outcome.
type DecisionObserver interface {
	ObserveGate(requirement string, granted bool)
}

// Gate guards route subtrees behind a role requirement.
type Gate struct {
	Sessions SessionReader
	Logger   *slog.Logger
	Observer DecisionObserver
}

// Require admits the request only when the stored session's role satisfies
// requirement. Every other outcome redirects to the landing page without a
// message. The check runs on every request.
func (g Gate) Require(requirement string) func(http.Handler) http.Handler {
	required := session.NormalizeRole(requirement)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := g.Sessions.Read(r.Context())
			if !ok {
				g.deny(w, r, required, "", "no session")
				return
			}
			role := session.NormalizeRole(sess.Role.String())
			if role == "" {
				g.deny(w, r, required, "", "no role found in session")
				return
			}
			if !Grant(role, required) {
				g.deny(w, r, required, role, "role mismatch")
				return
			}
			g.logger().Debug("rbac grant",
				slog.String("path", r.URL.Path),
				slog.String("role", role),
				slog.String("requirement", required))
			g.observe(required, true)
			next.ServeHTTP(w, r)
		})
	}
}

func (g Gate) deny(w http.ResponseWriter, r *http.Request, required, role, reason string) {
	g.logger().Warn("rbac deny",
		slog.String("path", r.URL.Path),
		slog.String("role", role),
		slog.String("requirement", required),
		slog.String("reason", reason))
	g.observe(required, false)
	nav.Redirect(w, r, nav.Landing)
}

func (g Gate) observe(required string, granted bool) {
	if g.Observer != nil {
		g.Observer.ObserveGate(required, granted)
	}
}

func (g Gate) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

package audit

import (
	"context"
	"net/http"
)

// RequestMeta is the client information attached to recorded events.
type RequestMeta struct {
	RemoteAddr string
	UserAgent  string
}

type metaKey struct{}

// WithRequestMeta stores meta in ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns the request metadata stored in ctx.
func MetaFromContext(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(metaKey{}).(RequestMeta)
	return meta, ok
}

// Middleware captures client address and user agent. It must run after
// chi's RealIP so RemoteAddr reflects the forwarded client.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRequestMeta(r.Context(), RequestMeta{
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

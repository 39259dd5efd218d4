package nav

import (
	"net/http"
	"strings"
)

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("HX-Request"), "true")
}

// Redirect sends the browser to target: 303 See Other for plain requests,
// an HX-Redirect header with 204 for htmx requests.
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	h := w.Header()
	h.Del("Content-Length")
	h.Del("Content-Type")
	if IsHTMX(r) {
		h.Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.Set("Location", target)
	w.WriteHeader(http.StatusSeeOther)
}

type navWriter struct {
	http.ResponseWriter
	nav         *Navigator
	req         *http.Request
	wroteHeader bool
	redirected  bool
}

func (w *navWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if target, ok := w.nav.Target(); ok {
		w.redirected = true
		Redirect(w.ResponseWriter, w.req, target)
		return
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *navWriter) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.redirected {
		return len(data), nil
	}
	return w.ResponseWriter.Write(data)
}

func (w *navWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware binds a Navigator to every request. When a navigation is pending
// by the time the handler writes its response, the response becomes a
// redirect and the rendered body is dropped.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := New(r.URL.Path)
		r = r.WithContext(WithNavigator(r.Context(), n))
		nw := &navWriter{ResponseWriter: w, nav: n, req: r}
		next.ServeHTTP(nw, r)
		if !nw.wroteHeader {
			if target, ok := n.Target(); ok {
				nw.wroteHeader = true
				nw.redirected = true
				Redirect(w, r, target)
			}
		}
	})
}

// Finish redirects to the pending navigation, or to fallback when nothing is
// pending. Handlers whose only outcome is a navigation end with it.
func Finish(w http.ResponseWriter, r *http.Request, fallback string) {
	if target, ok := FromContext(r.Context()).Target(); ok {
		Redirect(w, r, target)
		return
	}
	Redirect(w, r, fallback)
}

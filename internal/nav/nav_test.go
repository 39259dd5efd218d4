package nav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigatorRecordsFirstTargetOnly(t *testing.T) {
	n := New("/admin/dashboard")
	assert.True(t, n.Navigate(ExpiredURL))
	assert.False(t, n.Navigate("/employee/dashboard"))

	target, ok := n.Target()
	require.True(t, ok)
	assert.Equal(t, ExpiredURL, target)
}

func TestNavigatorSkipsLandingWhenOnLanding(t *testing.T) {
	n := New(Landing)
	assert.False(t, n.Navigate(ExpiredURL))
	_, ok := n.Target()
	assert.False(t, ok)

	assert.True(t, n.Navigate("/accountant/dashboard"))
}

func TestNavigatorConcurrentNavigateRecordsOnce(t *testing.T) {
	n := New("/admin/dashboard")
	var wg sync.WaitGroup
	recorded := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorded <- n.Navigate(ExpiredURL)
		}()
	}
	wg.Wait()
	close(recorded)

	count := 0
	for ok := range recorded {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestNilNavigatorIsInert(t *testing.T) {
	ctx := context.Background()
	assert.False(t, Navigate(ctx, "/"))
	assert.Equal(t, "", CurrentPath(ctx))
	_, ok := FromContext(ctx).Target()
	assert.False(t, ok)
}

func TestMiddlewareReplacesRenderedPage(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Navigate(r.Context(), ExpiredURL)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>stale dashboard</p>"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, ExpiredURL, rr.Header().Get("Location"))
	assert.NotContains(t, rr.Body.String(), "stale dashboard")
}

func TestMiddlewareRedirectsWhenHandlerWritesNothing(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Navigate(r.Context(), "/employee/dashboard")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/employee/dashboard", rr.Header().Get("Location"))
}

func TestMiddlewarePassesThroughWithoutNavigation(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/users", CurrentPath(r.Context()))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/users", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestMiddlewareUsesHXRedirectForHTMX(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Navigate(r.Context(), ExpiredURL)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/accountant/salary-management", nil)
	req.Header.Set("HX-Request", "true")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, ExpiredURL, rr.Header().Get("HX-Redirect"))
	assert.Empty(t, rr.Header().Get("Location"))
}

func TestFinishFallsBack(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(WithNavigator(req.Context(), New(req.URL.Path)))
	rr := httptest.NewRecorder()
	Finish(rr, req, Landing)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, Landing, rr.Header().Get("Location"))
}

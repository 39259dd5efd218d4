package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nast-payroll/portal/internal/observability"
	_ "github.com/nast-payroll/portal/testing"
)

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// fakePayroll stands in for the payroll backend.
type fakePayroll struct {
	mu         sync.Mutex
	loginBody  string
	authHeader []string
	expired    atomic.Bool
	logouts    atomic.Int32
}

func (f *fakePayroll) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/auth/login":
		f.mu.Lock()
		body := f.loginBody
		f.mu.Unlock()
		if body == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
		return
	case "/api/auth/logout":
		f.logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	f.mu.Lock()
	f.authHeader = append(f.authHeader, r.Header.Get("Authorization"))
	f.mu.Unlock()
	if f.expired.Load() {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `[{"id":1,"status":"PAID"},{"id":2,"status":"PENDING"}]`)
}

func (f *fakePayroll) headers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeader...)
}

type portalHarness struct {
	server  *httptest.Server
	client  *http.Client
	backend *fakePayroll
	portal  *Portal
}

func newPortalHarness(t *testing.T) *portalHarness {
	t.Helper()
	backend := &fakePayroll{}
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &Config{
		AppEnv:             "test",
		BackendURL:         backendSrv.URL + "/api",
		BackendTimeout:     5 * time.Second,
		AppRequestTimeout:  10 * time.Second,
		SessionSecret:      "session-secret",
		SessionTTL:         time.Hour,
		SessionCookie:      "nast_portal",
		CSRFSecret:         "csrf-secret",
		RateLimitPerMinute: 1000,
		DashboardFanout:    2,
	}
	portal, err := NewPortal(context.Background(), cfg, nil, Dependencies{
		Redis:   rdb,
		Metrics: observability.NewMetrics(),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(portal.Handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &portalHarness{server: srv, client: client, backend: backend, portal: portal}
}

func (h *portalHarness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Get(h.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (h *portalHarness) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.PostForm(h.server.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (h *portalHarness) csrfToken(t *testing.T) string {
	t.Helper()
	resp, body := h.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	match := csrfPattern.FindStringSubmatch(body)
	require.Len(t, match, 2, "landing page carries a csrf token")
	return match[1]
}

func (h *portalHarness) login(t *testing.T, payload string) *http.Response {
	t.Helper()
	h.backend.mu.Lock()
	h.backend.loginBody = payload
	h.backend.mu.Unlock()
	resp, _ := h.post(t, "/auth/login", url.Values{
		"csrf_token": {h.csrfToken(t)},
		"username":   {"sita"},
		"password":   {"secret"},
	})
	return resp
}

const accountantLogin = `{"token":"tok-sita","userId":16,"empId":7,"username":"sita","role":"ROLE_ACCOUNTANT"}`

func TestAccountantLoginLandsOnDashboard(t *testing.T) {
	h := newPortalHarness(t)

	resp := h.login(t, accountantLogin)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/accountant/dashboard", resp.Header.Get("Location"))

	resp, body := h.get(t, "/accountant/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Accountant / DASHBOARD")
	assert.Contains(t, body, "sita")
	for _, header := range h.backend.headers() {
		assert.Equal(t, "Bearer tok-sita", header)
	}

	var status map[string]string
	resp, body = h.get(t, "/auth/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "AUTHENTICATED", status["state"])
	assert.Equal(t, "ROLE_ACCOUNTANT", status["role"])
}

func TestRoleMismatchRedirectsToLanding(t *testing.T) {
	h := newPortalHarness(t)
	require.Equal(t, http.StatusSeeOther, h.login(t, accountantLogin).StatusCode)

	for _, path := range []string{"/admin/dashboard", "/employee/attendance"} {
		resp, _ := h.get(t, path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/", resp.Header.Get("Location"), path)
	}
}

func TestAnonymousAreaAccessRedirectsToLanding(t *testing.T) {
	h := newPortalHarness(t)
	for _, path := range []string{"/admin/dashboard", "/accountant/payroll-processing", "/employee/salary"} {
		resp, _ := h.get(t, path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/", resp.Header.Get("Location"), path)
	}
}

func TestUnknownPathRedirectsToLanding(t *testing.T) {
	h := newPortalHarness(t)
	resp, _ := h.get(t, "/definitely/not/here")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestBackendRejectionExpiresSession(t *testing.T) {
	h := newPortalHarness(t)
	require.Equal(t, http.StatusSeeOther, h.login(t, accountantLogin).StatusCode)

	h.backend.expired.Store(true)
	resp, _ := h.get(t, "/accountant/dashboard")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/?expired=true", resp.Header.Get("Location"))

	resp, body := h.get(t, "/?expired=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Your session has expired. Please log in again.")

	resp, _ = h.get(t, "/accountant/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestRecoveryRejectionExpiresSession(t *testing.T) {
	h := newPortalHarness(t)
	require.Equal(t, http.StatusSeeOther, h.login(t, accountantLogin).StatusCode)

	_, body := h.get(t, "/forgot-password")
	match := csrfPattern.FindStringSubmatch(body)
	require.Len(t, match, 2)

	h.backend.expired.Store(true)
	resp, _ := h.post(t, "/forgot-password", url.Values{
		"csrf_token": {match[1]},
		"email":      {"sita@example.com"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/?expired=true", resp.Header.Get("Location"))

	h.backend.expired.Store(false)
	resp, _ = h.get(t, "/accountant/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestUnknownRoleIsRefused(t *testing.T) {
	h := newPortalHarness(t)
	resp := h.login(t, `{"token":"tok","userId":3,"username":"x","role":"ROLE_AUDITOR"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.get(t, "/admin/dashboard")
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	h := newPortalHarness(t)
	h.csrfToken(t)
	resp, _ := h.post(t, "/auth/login", url.Values{"username": {"sita"}, "password": {"secret"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLogoutEndsSession(t *testing.T) {
	h := newPortalHarness(t)
	require.Equal(t, http.StatusSeeOther, h.login(t, accountantLogin).StatusCode)

	_, body := h.get(t, "/accountant/dashboard")
	match := csrfPattern.FindStringSubmatch(body)
	require.Len(t, match, 2)

	resp, _ := h.post(t, "/auth/logout", url.Values{"csrf_token": {match[1]}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = h.get(t, "/accountant/dashboard")
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHealthAndStaticAssets(t *testing.T) {
	h := newPortalHarness(t)
	resp, body := h.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	resp, body = h.get(t, "/static/css/portal.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/css"))
	assert.NotEmpty(t, body)

	resp, body = h.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "portal_http_requests_total")
}

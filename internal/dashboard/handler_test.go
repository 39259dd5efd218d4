package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nast-payroll/portal/internal/api"
	"github.com/nast-payroll/portal/internal/audit"
	"github.com/nast-payroll/portal/internal/rbac"
	"github.com/nast-payroll/portal/internal/session"
	"github.com/nast-payroll/portal/internal/view"
)

type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
	inflight  atomic.Int32
	peak      atomic.Int32
	delay     time.Duration
}

func (f *stubFetcher) Get(_ context.Context, path string, _ ...api.Option) (*api.Response, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	body, ok := f.responses[path]
	if !ok {
		return nil, &api.StatusError{Status: http.StatusNotFound}
	}
	return &api.Response{Status: http.StatusOK, Body: []byte(body)}, nil
}

type stubSessions struct{ sess *session.Session }

func (s stubSessions) Read(context.Context) (*session.Session, bool) {
	return s.sess, s.sess != nil
}

type stubActivity struct {
	result audit.Result
	err    error
}

func (s stubActivity) Timeline(context.Context, audit.TimelineFilters) (audit.Result, error) {
	return s.result, s.err
}

func newRouter(t *testing.T, cfg Config, area rbac.Area) http.Handler {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	cfg.Templates = engine
	cfg.Catalog = catalog
	h := NewHandler(cfg)
	r := chi.NewRouter()
	r.Route(area.Prefix, func(r chi.Router) { h.MountArea(r, area) })
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func adminSession() *session.Session {
	return &session.Session{Token: "t", UserID: 1, Username: "root", Role: "ROLE_ADMIN"}
}

func TestAreaRootRedirectsToDashboard(t *testing.T) {
	h := newRouter(t, Config{Client: &stubFetcher{}, Sessions: stubSessions{adminSession()}}, rbac.Areas[0])
	rr := get(t, h, "/admin/")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/admin/dashboard", rr.Header().Get("Location"))
}

func TestDashboardRendersCountsConcurrently(t *testing.T) {
	fetcher := &stubFetcher{
		delay: 20 * time.Millisecond,
		responses: map[string]string{
			"/employees":       `[{"empId":1},{"empId":2},{"empId":3}]`,
			"/users":           `{"content":[{"userId":1}],"totalElements":41}`,
			"/employee-leaves": `{"count":5}`,
		},
		errs: map[string]error{
			"/payrolls": &api.StatusError{Status: http.StatusInternalServerError, Message: "Payroll ledger offline"},
		},
	}
	h := newRouter(t, Config{Client: fetcher, Sessions: stubSessions{adminSession()}, Fanout: 2}, rbac.Areas[0])

	rr := get(t, h, "/admin/dashboard")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Admin / DASHBOARD")
	assert.Contains(t, body, ">3<")
	assert.Contains(t, body, ">41<")
	assert.Contains(t, body, ">5<")
	assert.Contains(t, body, "Payroll ledger offline")
	assert.Len(t, fetcher.calls, 4)
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(2))
	assert.Greater(t, fetcher.peak.Load(), int32(1))
}

func TestResourcePageRendersConfiguredColumns(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]string{
		"/users": `[{"userId":16,"username":"sita","email":"sita@nast.test","role":{"roleName":"ROLE_ACCOUNTANT"}}]`,
	}}
	h := newRouter(t, Config{Client: fetcher, Sessions: stubSessions{adminSession()}}, rbac.Areas[0])

	rr := get(t, h, "/admin/users")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Admin / USERS")
	assert.Contains(t, body, "sita@nast.test")
	assert.Contains(t, body, "ROLE_ACCOUNTANT")
}

func TestResourcePageShowsBackendErrorInline(t *testing.T) {
	fetcher := &stubFetcher{errs: map[string]error{"/users": errors.New("dial tcp: connection refused")}}
	h := newRouter(t, Config{Client: fetcher, Sessions: stubSessions{adminSession()}}, rbac.Areas[0])

	rr := get(t, h, "/admin/users")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), msgUnreachable)
}

func TestEmployeeEndpointsUseSessionIDs(t *testing.T) {
	emp := int64(7)
	sess := &session.Session{Token: "t", UserID: 16, EmployeeID: &emp, Username: "sita", Role: "ROLE_EMPLOYEE"}
	fetcher := &stubFetcher{responses: map[string]string{
		"/attendance/employee/7": `[{"date":"2026-10-01","status":"PRESENT"}]`,
	}}
	h := newRouter(t, Config{Client: fetcher, Sessions: stubSessions{sess}}, rbac.Areas[2])

	rr := get(t, h, "/employee/attendance")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "PRESENT")
	assert.Equal(t, []string{"/attendance/employee/7"}, fetcher.calls)
}

func TestEmployeePageWithoutEmployeeRecord(t *testing.T) {
	sess := &session.Session{Token: "t", UserID: 16, Username: "sita", Role: "ROLE_EMPLOYEE"}
	fetcher := &stubFetcher{}
	h := newRouter(t, Config{Client: fetcher, Sessions: stubSessions{sess}}, rbac.Areas[2])

	rr := get(t, h, "/employee/attendance")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), msgNoEmployee)
	assert.Empty(t, fetcher.calls)
}

func TestSessionActivityPage(t *testing.T) {
	activity := stubActivity{result: audit.Result{Rows: []audit.Event{{
		UserID:    16,
		Role:      "ROLE_ACCOUNTANT",
		Kind:      audit.KindLogin,
		CreatedAt: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
	}}}}
	h := newRouter(t, Config{Client: &stubFetcher{}, Sessions: stubSessions{adminSession()}, Activity: activity}, rbac.Areas[0])

	rr := get(t, h, "/admin/session-activity")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "2026-10-01T08:00:00Z")
	assert.Contains(t, rr.Body.String(), "ROLE_ACCOUNTANT")
}

func TestSessionActivityWithoutDatabase(t *testing.T) {
	h := newRouter(t, Config{Client: &stubFetcher{}, Sessions: stubSessions{adminSession()}}, rbac.Areas[0])
	rr := get(t, h, "/admin/session-activity")
	assert.Contains(t, rr.Body.String(), "not recorded")
}

func TestMissingSessionRedirectsToLanding(t *testing.T) {
	h := newRouter(t, Config{Client: &stubFetcher{}, Sessions: stubSessions{}}, rbac.Areas[0])
	rr := get(t, h, "/admin/dashboard")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
}

func TestBreadcrumb(t *testing.T) {
	assert.Equal(t, "Accountant / PAYROLL PROCESSING", Breadcrumb("Accountant", "payroll-processing"))
	assert.Equal(t, "Admin / DASHBOARD", Breadcrumb("Admin", "/dashboard"))
}

func TestBreadcrumbConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if got := Breadcrumb("Employee", "salary-slips"); got != "Employee / SALARY SLIPS" {
					t.Errorf("Breadcrumb = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDecodeRowsShapes(t *testing.T) {
	rows, err := decodeRows([]byte(`[{"a":1},{"a":2}]`))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = decodeRows([]byte(`{"content":[{"a":1}],"totalElements":9}`))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = decodeRows([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = decodeRows([]byte(`"text"`))
	assert.Error(t, err)
}

func TestColumnsFallBackToSortedKeys(t *testing.T) {
	cols := columnsFor(nil, []map[string]any{{"b": 1, "a": 2}})
	require.Len(t, cols, 2)
	assert.Equal(t, "a", cols[0].Key)
	assert.True(t, strings.EqualFold(cols[1].Label, "b"))
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nast-payroll/portal/internal/api"
	jobmetrics "github.com/nast-payroll/portal/internal/jobs"
)

func newRevokeJob(t *testing.T, status int, seen *string) *RevokeJob {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/logout", r.URL.Path)
		*seen = r.Header.Get("Authorization")
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	client, err := api.NewClient(api.Config{BaseURL: srv.URL + "/api"})
	require.NoError(t, err)
	return NewRevokeJob(client, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func revokeTask(t *testing.T, payload RevokePayload) *asynq.Task {
	t.Helper()
	task, err := NewRevokeTask(payload)
	require.NoError(t, err)
	return task
}

func TestRevokeJobPostsLogoutWithToken(t *testing.T) {
	var seen string
	job := newRevokeJob(t, http.StatusNoContent, &seen)

	err := job.Handle(context.Background(), revokeTask(t, RevokePayload{Token: "abc123", UserID: 16}))
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc123", seen)
}

func TestRevokeJobTerminalStatuses(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		var seen string
		job := newRevokeJob(t, status, &seen)
		assert.NoError(t, job.Handle(context.Background(), revokeTask(t, RevokePayload{Token: "abc123", UserID: 16})))
	}
}

func TestRevokeJobRetriesServerErrors(t *testing.T) {
	var seen string
	job := newRevokeJob(t, http.StatusBadGateway, &seen)

	err := job.Handle(context.Background(), revokeTask(t, RevokePayload{Token: "abc123", UserID: 16}))
	var statusErr *api.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
}

func TestRevokeJobSkipsEmptyToken(t *testing.T) {
	seen := "untouched"
	job := newRevokeJob(t, http.StatusOK, &seen)

	require.NoError(t, job.Handle(context.Background(), revokeTask(t, RevokePayload{UserID: 3})))
	assert.Equal(t, "untouched", seen)
}

func TestRevokeJobRejectsBadPayload(t *testing.T) {
	var seen string
	job := newRevokeJob(t, http.StatusOK, &seen)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSessionRevoke, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestClientRevokeEnqueuesTask(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)

	require.NoError(t, client.Revoke(context.Background(), "abc123", 16))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskSessionRevoke, enq.tasks[0].Type())

	var payload RevokePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, RevokePayload{Token: "abc123", UserID: 16}, payload)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	var h *Handler
	if inspector == nil {
		h = NewHandler(nil, nil)
	} else {
		h = NewHandler(inspector, nil)
	}
	rr := httptest.NewRecorder()
	h.health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rr
}

func TestHealthReportsQueue(t *testing.T) {
	rr := serveHealth(t, fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Retry: 1}})
	require.Equal(t, http.StatusOK, rr.Code)

	var out queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, 4, out.Pending)
	assert.Equal(t, 1, out.Retry)
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := serveHealth(t, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"queue":"default"`)
}

func TestHealthQueueFailure(t *testing.T) {
	rr := serveHealth(t, fakeInspector{err: errors.New("redis down")})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

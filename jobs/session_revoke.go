package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"

	"github.com/nast-payroll/portal/internal/api"
	jobmetrics "github.com/nast-payroll/portal/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LogoutBackend posts the backend logout call.
type LogoutBackend interface {
	Post(ctx context.Context, path string, body any, opts ...api.Option) (*api.Response, error)
}

// RevokeJob tells the backend a token was logged out of the portal.
type RevokeJob struct {
	Backend LogoutBackend
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRevokeJob wires dependencies for the revoke handler.
func NewRevokeJob(backend LogoutBackend, logger *slog.Logger, metrics *jobmetrics.Metrics) *RevokeJob {
	return &RevokeJob{Backend: backend, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSessionRevoke tasks. Rejections that mean the token
// is already unusable end the task; other failures are retried by asynq.
func (j *RevokeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Backend == nil {
		return errors.New("session revoke: handler not configured")
	}
	var payload RevokePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSessionRevoke)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("user_id", payload.UserID))
	if payload.Token == "" {
		logger.Info("revoke skipped, no token")
		j.metrics().AddRevocation("skipped")
		return nil
	}

	_, err := j.Backend.Post(ctx, "/auth/logout", nil, api.WithToken(payload.Token), api.SkipInvalidation())
	if err == nil {
		logger.Info("token revoked")
		j.metrics().AddRevocation("revoked")
		return nil
	}

	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			logger.Info("token already unusable", slog.Int("status", statusErr.Status))
			j.metrics().AddRevocation("rejected")
			return nil
		}
	}
	resultErr = err
	logger.Warn("revoke failed", slog.Any("error", err))
	j.metrics().AddRevocation("failed")
	return resultErr
}

func (j *RevokeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RevokeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

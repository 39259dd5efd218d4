package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionRevoke asks the backend to drop a token the portal logged out.
	TaskSessionRevoke = "session:revoke"
)

// RevokePayload identifies the credential to revoke.
type RevokePayload struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

// NewRevokeTask constructs an Asynq task.
func NewRevokeTask(payload RevokePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionRevoke, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

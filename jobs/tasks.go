package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAssociationsExpire moves associations past their end date to INACTIVE.
	TaskAssociationsExpire = "associations:expire"
)

// ExpirePayload controls an expiry sweep. A zero At means "now".
type ExpirePayload struct {
	At time.Time `json:"at,omitempty"`
}

// NewExpireTask constructs an expiry task.
func NewExpireTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ExpirePayload{At: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssociationsExpire, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-access/internal/jobs"
)

// Expirer is the ledger operation driven by the sweep.
type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// ExpireJob runs the association expiry sweep.
type ExpireJob struct {
	Ledger  Expirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewExpireJob initialises the expiry handler.
func NewExpireJob(ledger Expirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpireJob {
	return &ExpireJob{
		Ledger:  ledger,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one sweep.
func (j *ExpireJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("associations expire: handler not configured")
	}
	var payload ExpirePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	at := payload.At
	if at.IsZero() {
		at = j.clock()
	}

	tracker := j.Metrics.Track(TaskAssociationsExpire)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Time("at", at))
	expired, err := j.Ledger.ExpireDue(ctx, at)
	j.Metrics.AddExpired(expired)
	if err != nil {
		logger.Error("associations expire failed", slog.Int("expired", expired), slog.Any("error", err))
		return err
	}
	logger.Info("associations expired", slog.Int("expired", expired))
	return nil
}

func (j *ExpireJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

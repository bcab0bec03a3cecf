package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Client submits tasks to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient connects a queue client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueExpire queues an expiry sweep evaluated at at. A zero at defers to the worker clock.
func (c *Client) EnqueueExpire(ctx context.Context, at time.Time) (*asynq.TaskInfo, error) {
	task, err := NewExpireTask(at)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

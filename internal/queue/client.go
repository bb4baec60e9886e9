package queue

import (
	"context"
	"time"

	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/hibiken/asynq"
)

const maxRetry = 5

// Metadata extraction never encodes, so it gets a tighter deadline than conversion.
var taskTimeouts = map[string]time.Duration{
	domain.OperationConvert:  3 * time.Minute,
	domain.OperationMetadata: 45 * time.Second,
}

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueImage schedules a job under its own id, so a second start of the same
// job is rejected by asynq with ErrTaskIDConflict.
func (c *Client) EnqueueImage(ctx context.Context, payload ImagePayload) (*asynq.TaskInfo, error) {
	task, err := NewImageTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, EnqueueOptions(c.queue, payload)...)
}

// EnqueueOptions returns the asynq options applied to an image task.
func EnqueueOptions(queueName string, payload ImagePayload) []asynq.Option {
	timeout, ok := taskTimeouts[payload.Operation]
	if !ok {
		timeout = taskTimeouts[domain.OperationConvert]
	}
	return []asynq.Option{
		asynq.Queue(queueName),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(timeout),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

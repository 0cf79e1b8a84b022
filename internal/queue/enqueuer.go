package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxRetries is the number of retries a job gets on either backend
const DefaultMaxRetries = 3

// JobEnqueuer submits page alignment jobs
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *JobPayload) (string, error)
	Close() error
}

// Enqueuer submits jobs as asynq tasks
type Enqueuer struct {
	client *asynq.Client
	queue  string
}

// NewEnqueuer creates an asynq task producer
func NewEnqueuer(redisURL, queueName string) (*Enqueuer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Enqueuer{client: asynq.NewClient(redisOpt), queue: queueName}, nil
}

// Enqueue submits job. The job ID doubles as the task ID so a page is not
// queued twice under the same job.
func (e *Enqueuer) Enqueue(ctx context.Context, job *JobPayload) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	info, err := e.client.EnqueueContext(ctx,
		asynq.NewTask(TaskTypeAlignDocument, data),
		asynq.Queue(e.queue),
		asynq.MaxRetry(DefaultMaxRetries),
		asynq.TaskID(job.JobID),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return info.ID, nil
}

// Close closes the asynq client
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// RedisEnqueuer submits jobs to the LIST queue read by RedisConsumer
type RedisEnqueuer struct {
	client *redis.Client
	keys   queueKeys
}

// NewRedisEnqueuer creates a LIST queue producer
func NewRedisEnqueuer(redisURL, queueName string) (*RedisEnqueuer, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &RedisEnqueuer{client: redis.NewClient(opt), keys: newQueueKeys(queueName)}, nil
}

// Enqueue stores the job data and pushes its ID onto the queue
func (e *RedisEnqueuer) Enqueue(ctx context.Context, job *JobPayload) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(&RedisJobData{
		ID:         job.JobID,
		Type:       TaskTypeAlignDocument,
		Payload:    *job,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: DefaultMaxRetries,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = e.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, e.keys.data, job.JobID, data)
		pipe.LPush(ctx, e.keys.queue, job.JobID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return job.JobID, nil
}

// Close closes the Redis client
func (e *RedisEnqueuer) Close() error {
	return e.client.Close()
}

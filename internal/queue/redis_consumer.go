/**
 * Direct Redis Queue Consumer for the alignment worker
 *
 * Compatible with the TypeScript RedisQueue implementation: job IDs are
 * pushed onto a LIST, job data lives in the <queue>:data hash, status is
 * tracked in sets and every transition is published on <queue>:events.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/alignment-worker/internal/logging"
	"github.com/adverant/nexus/alignment-worker/internal/processor"
)

var errNoJobs = stderrors.New("no jobs available")

// queueKeys are the Redis keys derived from a queue name
type queueKeys struct {
	queue      string
	data       string
	processing string
	completed  string
	failed     string
	results    string
	errors     string
	events     string
}

func newQueueKeys(name string) queueKeys {
	return queueKeys{
		queue:      name,
		data:       name + ":data",
		processing: name + ":processing",
		completed:  name + ":completed",
		failed:     name + ":failed",
		results:    name + ":results",
		errors:     name + ":errors",
		events:     name + ":events",
	}
}

// JobSummary is stored in the results hash for completed jobs
type JobSummary struct {
	JobID            string `json:"jobId"`
	DocumentID       string `json:"documentId"`
	Accepted         int    `json:"accepted"`
	Rejected         int    `json:"rejected"`
	Skipped          int    `json:"skipped"`
	Unmatched        []int  `json:"unmatched"`
	ReportArtifactID string `json:"reportArtifactId,omitempty"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
}

func summarize(res *processor.ProcessResult) *JobSummary {
	return &JobSummary{
		JobID:            res.JobID,
		DocumentID:       res.DocumentID,
		Accepted:         len(res.Result.Accepted),
		Rejected:         len(res.Result.Rejected),
		Skipped:          len(res.Result.Skipped),
		Unmatched:        res.Result.Unmatched(),
		ReportArtifactID: res.ReportArtifactID,
		ProcessingTimeMs: res.ProcessingTime.Milliseconds(),
	}
}

// jobEvent is published on the events channel
func jobEvent(jobID, status string, now time.Time) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"event":     "job:" + status,
		"jobId":     jobID,
		"timestamp": now.Format(time.RFC3339),
	})
	return data
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client    *redis.Client
	processor processor.DocumentProcessorInterface
	config    *RedisConsumerConfig
	keys      queueKeys
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "alignment:jobs"
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}

	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 2 * time.Minute
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Queue")
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		keys:      newQueueKeys(cfg.QueueName),
		logger:    logger,
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting queue consumer", "backend", "redis", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if !stderrors.Is(err, errNoJobs) && c.ctx.Err() == nil {
					c.logger.Warn("Worker error", "worker", id, "error", err)
					time.Sleep(1 * time.Second)
				}
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.keys.queue).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	id := result[1]

	jobData, err := c.client.HGet(c.ctx, c.keys.data, id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		c.markFailed(id, map[string]interface{}{"message": fmt.Sprintf("invalid job data: %v", err)})
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if err := job.Payload.Validate(); err != nil {
		c.markFailed(id, map[string]interface{}{"message": err.Error()})
		return err
	}

	jobID := job.Payload.JobID
	logger := c.logger.With("job", jobID)

	c.markProcessing(jobID, job.Payload.statusMetadata())
	logger.Info("Processing page", "document", job.Payload.DocumentID, "page", job.Payload.PageName)

	startTime := time.Now()
	processResult, err := c.processJob(&job)
	if err == nil {
		c.markCompleted(jobID, summarize(processResult))
		logger.Info("Job completed", "accepted", len(processResult.Result.Accepted), "duration", time.Since(startTime).String())
		return nil
	}

	logger.Warn("Job failed", "attempt", job.Attempts+1, "error", err)

	job.Attempts++
	if retryable(err) && job.Attempts < job.MaxRetries {
		updatedData, _ := json.Marshal(job)
		c.client.HSet(c.ctx, c.keys.data, job.ID, updatedData)
		c.client.LPush(c.ctx, c.keys.queue, job.ID)
		logger.Info("Job re-queued for retry", "attempt", job.Attempts, "max_retries", job.MaxRetries)
		return nil
	}

	failure := failureMetadata(jobID, err, time.Since(startTime))
	failure["attempts"] = job.Attempts
	c.markFailed(jobID, failure)
	return nil
}

// processJob runs the page under the processing timeout
func (c *RedisConsumer) processJob(job *RedisJobData) (*processor.ProcessResult, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.config.ProcessingTimeout)
	defer cancel()

	return c.processor.ProcessDocument(ctx, job.Payload.ProcessRequest())
}

// markProcessing records the job as picked up in Redis and the job row
func (c *RedisConsumer) markProcessing(jobID string, metadata map[string]interface{}) {
	c.client.SAdd(c.ctx, c.keys.processing, jobID)
	if err := c.processor.UpdateJobStatus(c.ctx, jobID, "processing", metadata); err != nil {
		c.logger.Warn("Failed to update job status to processing", "job", jobID, "error", err)
	}
	c.publish(jobID, "processing")
}

// markCompleted only touches Redis: the processor already wrote the
// completed job row together with its lines
func (c *RedisConsumer) markCompleted(jobID string, summary *JobSummary) {
	c.client.SRem(c.ctx, c.keys.processing, jobID)
	c.client.SAdd(c.ctx, c.keys.completed, jobID)
	resultData, _ := json.Marshal(summary)
	c.client.HSet(c.ctx, c.keys.results, jobID, resultData)
	c.publish(jobID, "completed")
}

func (c *RedisConsumer) markFailed(jobID string, failure map[string]interface{}) {
	c.client.SRem(c.ctx, c.keys.processing, jobID)
	c.client.SAdd(c.ctx, c.keys.failed, jobID)
	errorData, _ := json.Marshal(failure)
	c.client.HSet(c.ctx, c.keys.errors, jobID, errorData)

	if err := c.processor.UpdateJobStatus(c.ctx, jobID, "failed", failure); err != nil {
		c.logger.Warn("Failed to update job status to failed", "job", jobID, "error", err)
	}
	c.publish(jobID, "failed")
}

// publish sends a status event for WebSocket streaming
func (c *RedisConsumer) publish(jobID, status string) {
	c.client.Publish(c.ctx, c.keys.events, jobEvent(jobID, status, time.Now()))
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.keys.queue)
	processing := pipe.SCard(ctx, c.keys.processing)
	completed := pipe.SCard(ctx, c.keys.completed)
	failed := pipe.SCard(ctx, c.keys.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}

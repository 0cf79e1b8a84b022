package queue

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/alignment-worker/internal/errors"
	"github.com/adverant/nexus/alignment-worker/internal/processor"
	"github.com/adverant/nexus/alignment-worker/internal/source"
)

// TaskTypeAlignDocument is the asynq task type of a page alignment job
const TaskTypeAlignDocument = "align-document"

// JobPayload is the job data shared by both queue backends. The page
// fields (documentId, pageName, reference, ocr) sit at the top level.
type JobPayload struct {
	JobID string `json:"jobId"`
	source.Request
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RedisJobData represents a job from the Redis LIST queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// NewJobPayload wraps req in a payload with a fresh job ID
func NewJobPayload(req source.Request, metadata map[string]interface{}) *JobPayload {
	return &JobPayload{
		JobID:    uuid.NewString(),
		Request:  req,
		Metadata: metadata,
	}
}

// DecodeJobPayload parses and validates a task payload
func DecodeJobPayload(data []byte) (*JobPayload, error) {
	var p JobPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the fields every backend relies on. Job IDs key the
// PostgreSQL rows and must be UUIDs.
func (p *JobPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if _, err := uuid.Parse(p.JobID); err != nil {
		return fmt.Errorf("jobId %q is not a UUID: %w", p.JobID, err)
	}
	if p.Reference.IsZero() {
		return fmt.Errorf("job %s: reference is required", p.JobID)
	}
	if p.OCR.Lines == nil && p.OCR.Location.IsZero() {
		return fmt.Errorf("job %s: ocr lines or location is required", p.JobID)
	}
	return nil
}

// ProcessRequest converts the payload to the processor's request
func (p *JobPayload) ProcessRequest() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:    p.JobID,
		Request:  p.Request,
		Metadata: p.Metadata,
	}
}

// statusMetadata is what the job row learns when a job is picked up
func (p *JobPayload) statusMetadata() map[string]interface{} {
	m := map[string]interface{}{}
	if p.DocumentID != "" {
		m["documentId"] = p.DocumentID
	}
	if p.PageName != "" {
		m["pageName"] = p.PageName
	}
	return m
}

// failureMetadata describes err for the job row and the Redis error hash
func failureMetadata(jobID string, err error, duration time.Duration) map[string]interface{} {
	var m map[string]interface{}
	var pe *errors.ProcessingError
	if stderrors.As(err, &pe) {
		m = pe.ToMap()
	} else {
		m = map[string]interface{}{"message": err.Error(), "job_id": jobID}
	}
	m["processingTime"] = duration.Milliseconds()
	return m
}

// retryable reports whether running the job again could succeed. Bad input
// fails the same way on every attempt.
func retryable(err error) bool {
	switch errors.CodeOf(err) {
	case errors.ErrorMalformedInput, errors.ErrorUpstreamDataMissing:
		return false
	default:
		return true
	}
}

// retryDelay is the exponential backoff between attempts: 5s, 10s, 20s,
// capped at a minute
func retryDelay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 4 {
		return 60 * time.Second
	}
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

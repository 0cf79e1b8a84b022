package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/alignment-worker/internal/align"
	"github.com/adverant/nexus/alignment-worker/internal/errors"
	"github.com/adverant/nexus/alignment-worker/internal/logging"
	"github.com/adverant/nexus/alignment-worker/internal/processor"
)

type statusUpdate struct {
	status   string
	metadata map[string]interface{}
}

type fakeProcessor struct {
	err      error
	deadline bool
	updates  []statusUpdate
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return &processor.ProcessResult{
		JobID:      req.JobID,
		DocumentID: req.Request.DocumentID,
		Result:     &align.Result{DocumentID: req.Request.DocumentID, Skipped: []int{0}},
	}, nil
}

func (f *fakeProcessor) UpdateJobStatus(_ context.Context, _ string, status string, metadata map[string]interface{}) error {
	f.updates = append(f.updates, statusUpdate{status, metadata})
	return nil
}

func newTestConsumer(p *fakeProcessor) *Consumer {
	return &Consumer{
		processor: p,
		config:    &ConsumerConfig{QueueName: "alignment:jobs", ProcessingTimeout: time.Second},
		logger:    logging.NewLoggerTo(io.Discard, "test", slog.LevelError),
	}
}

func alignTask(t *testing.T) *asynq.Task {
	t.Helper()
	payload := `{"jobId":"` + testJobID + `","documentId":"1620-1","reference":{"text":"ma chère amie"},"ocr":{"lines":["ma chere amie"]}}`
	return asynq.NewTask(TaskTypeAlignDocument, []byte(payload))
}

func TestHandleAlignDocumentSuccess(t *testing.T) {
	p := &fakeProcessor{}
	c := newTestConsumer(p)

	if err := c.handleAlignDocument(context.Background(), alignTask(t)); err != nil {
		t.Fatalf("handleAlignDocument: %v", err)
	}
	if !p.deadline {
		t.Error("processing should run under a timeout")
	}
	if len(p.updates) != 1 || p.updates[0].status != "processing" || p.updates[0].metadata["documentId"] != "1620-1" {
		t.Errorf("updates = %+v, want only the processing update", p.updates)
	}
}

func TestHandleAlignDocumentFailures(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		skipRetry bool
		wantCode  string
	}{
		{"malformed input is not retried", errors.NewMalformedInputError(testJobID, "bad", nil), true, string(errors.ErrorMalformedInput)},
		{"missing data is not retried", errors.NewUpstreamDataMissingError(testJobID, "reference", "x", nil), true, string(errors.ErrorUpstreamDataMissing)},
		{"storage failure is retried", errors.NewStorageFailedError(testJobID, fmt.Errorf("down")), false, string(errors.ErrorStorageFailed)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProcessor{err: tc.err}
			err := newTestConsumer(p).handleAlignDocument(context.Background(), alignTask(t))
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := stderrors.Is(err, asynq.SkipRetry); got != tc.skipRetry {
				t.Errorf("SkipRetry = %v, want %v (%v)", got, tc.skipRetry, err)
			}
			// Outside a worker there is no retry count, so every failure is final.
			last := p.updates[len(p.updates)-1]
			if last.status != "failed" || last.metadata["error_code"] != tc.wantCode {
				t.Errorf("last update = %+v", last)
			}
		})
	}
}

func TestHandleAlignDocumentBadPayload(t *testing.T) {
	p := &fakeProcessor{}
	err := newTestConsumer(p).handleAlignDocument(context.Background(), asynq.NewTask(TaskTypeAlignDocument, []byte(`{"jobId":"x"}`)))
	if !stderrors.Is(err, asynq.SkipRetry) {
		t.Errorf("err = %v, want SkipRetry", err)
	}
	if len(p.updates) != 0 {
		t.Errorf("updates = %+v, want none", p.updates)
	}
}

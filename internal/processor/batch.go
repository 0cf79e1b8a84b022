package processor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/alignment-worker/internal/errors"
	"github.com/adverant/nexus/alignment-worker/internal/logging"
)

// PageProcessor is what the batch runner drives
type PageProcessor interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
}

// BatchRunner aligns many pages concurrently. A page that fails is logged
// and counted; the rest of the batch carries on.
type BatchRunner struct {
	processor   PageProcessor
	concurrency int
	timeout     time.Duration
	logger      *logging.Logger
}

// BatchFailure is a page that produced no result
type BatchFailure struct {
	JobID    string
	Document string
	Code     errors.ErrorCode
	Err      error
}

// BatchReport summarizes a batch run. Results follows the input order and
// holds nil for failed pages.
type BatchReport struct {
	Processed int
	Failed    int
	Accepted  int
	Rejected  int
	Skipped   int
	Duration  time.Duration
	Results   []*ProcessResult
	Failures  []BatchFailure
}

// NewBatchRunner creates a runner. concurrency below 1 means one page at a
// time; a zero timeout leaves pages unbounded.
func NewBatchRunner(p PageProcessor, concurrency int, timeout time.Duration, logger *logging.Logger) *BatchRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.NewLogger("Batch")
	}
	return &BatchRunner{
		processor:   p,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
	}
}

// Run processes every request. The returned error is only set when ctx
// itself ends before the batch does; the report is filled in either way.
func (b *BatchRunner) Run(ctx context.Context, reqs []*ProcessRequest) (*BatchReport, error) {
	startTime := time.Now()
	results := make([]*ProcessResult, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		i, req := i, req
		g.Go(func() error {
			results[i], errs[i] = b.runOne(ctx, req)
			return nil
		})
	}
	g.Wait()

	report := &BatchReport{Results: results}
	for i, req := range reqs {
		if err := errs[i]; err != nil {
			report.Failed++
			report.Failures = append(report.Failures, BatchFailure{
				JobID:    req.JobID,
				Document: describe(req),
				Code:     errors.CodeOf(err),
				Err:      err,
			})
			continue
		}
		res := results[i]
		if res == nil {
			continue
		}
		report.Processed++
		report.Accepted += len(res.Result.Accepted)
		report.Rejected += len(res.Result.Rejected)
		report.Skipped += len(res.Result.Skipped)
	}
	report.Duration = time.Since(startTime)

	b.logger.Info("Batch finished",
		"pages", len(reqs),
		"processed", report.Processed,
		"failed", report.Failed,
		"accepted", report.Accepted,
		"duration", report.Duration.String())

	return report, ctx.Err()
}

func (b *BatchRunner) runOne(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	res, err := b.processor.ProcessDocument(ctx, req)
	if err != nil {
		b.logger.Warn("Error trying to align page, skipping it",
			"job", req.JobID,
			"document", describe(req),
			"code", string(errors.CodeOf(err)),
			"error", err)
		return nil, err
	}
	return res, nil
}

func describe(req *ProcessRequest) string {
	if req.Request.DocumentID != "" {
		return req.Request.DocumentID
	}
	return req.Request.PageName
}

/**
 * Document Processor for the alignment worker
 *
 * Runs one page through the pipeline:
 * - load the reference transcription and the OCR lines
 * - normalize both sides the same way
 * - align every line and judge it against the acceptance curve
 * - build the review report and upload it (optional)
 * - persist lines, labels and the job row (optional)
 */

package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/adverant/nexus/alignment-worker/internal/align"
	"github.com/adverant/nexus/alignment-worker/internal/clients"
	"github.com/adverant/nexus/alignment-worker/internal/errors"
	"github.com/adverant/nexus/alignment-worker/internal/logging"
	"github.com/adverant/nexus/alignment-worker/internal/source"
	"github.com/adverant/nexus/alignment-worker/internal/storage"
	"github.com/adverant/nexus/alignment-worker/internal/textnorm"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error
}

// DocumentLoader resolves the inputs of a page
type DocumentLoader interface {
	Load(ctx context.Context, jobID string, req source.Request) (*source.Document, error)
}

// ResultStore persists finished pages and job status
type ResultStore interface {
	StoreResult(ctx context.Context, rec *storage.ResultRecord) error
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ReportUploader publishes review reports
type ReportUploader interface {
	UploadReport(ctx context.Context, jobID, documentID string, report []byte) (*clients.Artifact, error)
}

// ProcessorConfig holds processor collaborators. Store and Reports are
// optional; the CLI runs without either.
type ProcessorConfig struct {
	Producer   *align.Producer
	Normalizer *textnorm.Normalizer
	Loader     DocumentLoader
	Store      ResultStore
	Reports    ReportUploader
	Logger     *logging.Logger
}

// ProcessRequest represents a page alignment request
type ProcessRequest struct {
	JobID    string
	Request  source.Request
	Metadata map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	JobID            string
	DocumentID       string
	PageName         string
	Result           *align.Result
	Report           *Report
	ReportArtifactID string
	ProcessingTime   time.Duration
}

// DocumentProcessor handles page alignment
type DocumentProcessor struct {
	producer   *align.Producer
	normalizer *textnorm.Normalizer
	loader     DocumentLoader
	store      ResultStore
	reports    ReportUploader
	logger     *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Producer == nil {
		return nil, fmt.Errorf("alignment producer is required")
	}

	if cfg.Loader == nil {
		return nil, fmt.Errorf("document loader is required")
	}

	normalizer := cfg.Normalizer
	if normalizer == nil {
		n, err := textnorm.New(false, "")
		if err != nil {
			return nil, err
		}
		normalizer = n
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Processor")
	}

	return &DocumentProcessor{
		producer:   cfg.Producer,
		normalizer: normalizer,
		loader:     cfg.Loader,
		store:      cfg.Store,
		reports:    cfg.Reports,
		logger:     logger,
	}, nil
}

// ProcessDocument aligns one page and stores the outcome
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()
	logger := p.logger.With("job", req.JobID)
	logger.Info("Starting page alignment", "document", req.Request.DocumentID, "page", req.Request.PageName)

	doc, err := p.loader.Load(ctx, req.JobID, req.Request)
	if err != nil {
		return nil, p.classify(ctx, req.JobID, startTime, err)
	}
	logger.Debug("Page loaded", "document", doc.ID, "lines", len(doc.Lines), "reference_runes", len([]rune(doc.Reference)))

	result, err := p.AlignDocument(ctx, req.JobID, doc)
	if err != nil {
		return nil, p.classify(ctx, req.JobID, startTime, err)
	}

	out := &ProcessResult{
		JobID:      req.JobID,
		DocumentID: doc.ID,
		PageName:   doc.PageName,
		Result:     result,
		Report:     BuildReport(req.JobID, doc, result),
	}

	if p.reports != nil {
		out.ReportArtifactID = p.uploadReport(ctx, logger, out)
	}

	out.ProcessingTime = time.Since(startTime)

	if p.store != nil {
		err := p.store.StoreResult(ctx, &storage.ResultRecord{
			JobID:            req.JobID,
			DocumentID:       doc.ID,
			PageName:         doc.PageName,
			Result:           result,
			ProcessingTime:   out.ProcessingTime,
			ReportArtifactID: out.ReportArtifactID,
			Metadata:         req.Metadata,
		})
		if err != nil {
			return nil, p.classify(ctx, req.JobID, startTime, errors.NewStorageFailedError(req.JobID, err))
		}
	}

	logger.Info("Page alignment complete",
		"document", doc.ID,
		"accepted", len(result.Accepted),
		"rejected", len(result.Rejected),
		"skipped", len(result.Skipped),
		"duration", out.ProcessingTime.String())

	return out, nil
}

// AlignDocument normalizes a loaded page and runs the alignment engine on it
func (p *DocumentProcessor) AlignDocument(ctx context.Context, jobID string, doc *source.Document) (*align.Result, error) {
	patterns := p.normalizer.Lines(doc.Patterns())
	reference := p.normalizer.String(doc.Reference)

	result, err := p.producer.ProduceContext(ctx, doc.ID, patterns, reference)
	if stderrors.Is(err, align.ErrReferenceTooShort) {
		return nil, errors.NewMalformedInputError(jobID, "reference text is shorter than every OCR line", err)
	}
	if err != nil {
		return nil, fmt.Errorf("aligning %s: %w", doc.ID, err)
	}
	return result, nil
}

func (p *DocumentProcessor) uploadReport(ctx context.Context, logger *logging.Logger, out *ProcessResult) string {
	data, err := out.Report.JSON()
	if err != nil {
		logger.Warn("Failed to encode review report", "error", err)
		return ""
	}

	artifact, err := p.reports.UploadReport(ctx, out.JobID, out.DocumentID, data)
	if err != nil {
		// Non-fatal: the lines are still stored, only the review view is missing
		logger.Warn("Failed to upload review report", "document", out.DocumentID, "error", err)
		return ""
	}

	logger.Debug("Review report uploaded", "artifact", artifact.ID)
	return artifact.ID
}

// classify turns a deadline hit into PROCESSING_TIMEOUT and leaves other
// errors as they are
func (p *DocumentProcessor) classify(ctx context.Context, jobID string, startTime time.Time, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) && errors.CodeOf(err) != errors.ErrorProcessingTimeout {
		return errors.NewProcessingTimeoutError(jobID, time.Since(startTime), err)
	}
	return err
}

// UpdateJobStatus updates job status in the result store. A processor
// without a store ignores status updates.
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	if p.store == nil {
		return nil
	}

	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if code, ok := metadata["error_code"].(string); ok {
			update.ErrorCode = code
		}
		if message, ok := metadata["message"].(string); ok {
			update.ErrorMessage = message
		}
		if documentID, ok := metadata["documentId"].(string); ok {
			update.DocumentID = documentID
		}
		if pageName, ok := metadata["pageName"].(string); ok {
			update.PageName = pageName
		}
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

/**
 * Document loader
 *
 * Resolves the reference transcription and the OCR lines of a page from
 * inline content, local files, HTTP(S) URLs or FileProcess artifacts.
 * Any input that cannot be read becomes an UPSTREAM_DATA_MISSING error so
 * the caller can skip the page and carry on.
 */

package source

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/adverant/nexus/alignment-worker/internal/errors"
	"github.com/adverant/nexus/alignment-worker/internal/logging"
)

// ArtifactFetcher downloads stored artifacts by ID
type ArtifactFetcher interface {
	Download(ctx context.Context, artifactID string) ([]byte, error)
}

// LoaderConfig holds loader collaborators and limits
type LoaderConfig struct {
	HTTPClient *http.Client
	Artifacts  ArtifactFetcher // optional
	Recognizer LineRecognizer  // optional, needed for image inputs
	// DropTrailingLines is removed from the end of every reference read
	// from a file, URL or artifact. Inline references are kept whole.
	DropTrailingLines int
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	MaxInputSize      int64
	Logger            *logging.Logger
}

// Loader builds Documents from Requests
type Loader struct {
	config LoaderConfig
	logger *logging.Logger
}

// NewLoader creates a loader, filling unset limits with defaults
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 32 * time.Second
	}
	if cfg.MaxInputSize <= 0 {
		cfg.MaxInputSize = 64 * 1024 * 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Loader")
	}
	return &Loader{config: cfg, logger: logger}
}

// Load resolves both inputs of req
func (l *Loader) Load(ctx context.Context, jobID string, req Request) (*Document, error) {
	if req.DocumentID == "" {
		if cote, ok := CoteFromFilename(req.PageName); ok {
			req.DocumentID = cote
		} else {
			return nil, errors.NewMalformedInputError(jobID, "document id is missing and page name has no cote", nil)
		}
	}

	refData, err := l.read(ctx, jobID, req.Reference)
	if err != nil {
		return nil, errors.NewUpstreamDataMissingError(jobID, "reference", req.Reference.String(), err)
	}

	lines, err := l.loadLines(ctx, jobID, req.OCR)
	if err != nil {
		return nil, err
	}

	return &Document{
		ID:        req.DocumentID,
		PageName:  req.PageName,
		Reference: ParseReference(refData, l.trailingLinesFor(req.Reference)),
		Lines:     lines,
	}, nil
}

// trailingLinesFor returns how many trailing lines to drop from a reference
// read from loc
func (l *Loader) trailingLinesFor(loc Location) int {
	if loc.Text != "" {
		return 0
	}
	return l.config.DropTrailingLines
}

func (l *Loader) loadLines(ctx context.Context, jobID string, in OCRInput) ([]Line, error) {
	format := strings.ToLower(in.Format)
	if format == "" {
		format = FormatText
	}

	if in.Lines != nil {
		if format != FormatText {
			return nil, errors.NewMalformedInputError(jobID, fmt.Sprintf("inline lines are only valid for format %q", FormatText), nil)
		}
		return LinesFromTexts(in.Lines), nil
	}

	data, err := l.read(ctx, jobID, in.Location)
	if err != nil {
		return nil, errors.NewUpstreamDataMissingError(jobID, "ocr", in.Location.String(), err)
	}

	switch format {
	case FormatText:
		return ParseTextLines(data), nil
	case FormatHOCR:
		lines, err := ParseHOCRLines(data)
		if err != nil {
			return nil, errors.NewUpstreamDataMissingError(jobID, "ocr", in.Location.String(), err)
		}
		return lines, nil
	case FormatImage:
		if l.config.Recognizer == nil {
			return nil, errors.NewMalformedInputError(jobID, "image input needs a line recognizer", nil)
		}
		lines, err := l.config.Recognizer.RecognizeLines(ctx, data)
		if err != nil {
			return nil, errors.NewOCRFailedError(jobID, in.Location.String(), err)
		}
		return lines, nil
	default:
		return nil, errors.NewMalformedInputError(jobID, fmt.Sprintf("unknown ocr format %q", in.Format), nil)
	}
}

func (l *Loader) read(ctx context.Context, jobID string, loc Location) ([]byte, error) {
	switch {
	case loc.Text != "":
		return []byte(loc.Text), nil
	case loc.Path != "":
		return os.ReadFile(loc.Path)
	case loc.URL != "":
		return l.download(ctx, jobID, loc.URL)
	case loc.ArtifactID != "":
		if l.config.Artifacts == nil {
			return nil, fmt.Errorf("no artifact service configured")
		}
		return l.config.Artifacts.Download(ctx, loc.ArtifactID)
	default:
		return nil, fmt.Errorf("no location given")
	}
}

// download fetches url, retrying transport errors and non-2xx answers with
// exponential backoff
func (l *Loader) download(ctx context.Context, jobID, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= l.config.MaxRetries; attempt++ {
		data, err := l.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		l.logger.Warn("Download attempt failed", "job", jobID, "url", url, "attempt", attempt, "error", err)

		if attempt == l.config.MaxRetries {
			break
		}
		backoff := l.config.InitialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
		if backoff > l.config.MaxBackoff {
			backoff = l.config.MaxBackoff
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", l.config.MaxRetries, lastErr)
}

func (l *Loader) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.config.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if resp.ContentLength > l.config.MaxInputSize {
		return nil, fmt.Errorf("input size exceeds maximum: %d > %d bytes", resp.ContentLength, l.config.MaxInputSize)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.config.MaxInputSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.config.MaxInputSize {
		return nil, fmt.Errorf("input size exceeds maximum of %d bytes", l.config.MaxInputSize)
	}
	return data, nil
}

package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/adverant/nexus/alignment-worker/internal/align"
	"github.com/adverant/nexus/alignment-worker/internal/clients"
	"github.com/adverant/nexus/alignment-worker/internal/config"
	"github.com/adverant/nexus/alignment-worker/internal/errors"
	"github.com/adverant/nexus/alignment-worker/internal/logging"
	"github.com/adverant/nexus/alignment-worker/internal/source"
	"github.com/adverant/nexus/alignment-worker/internal/storage"
)

const french = "il y a toujours quelque chose de grave pour arrêter l'élan de mon âme, n'est-ce pas ? voilà tout ce que je voulais te dire ce soir."

var noisyLines = source.LineList{"", "toujours quelque chose de grave pour arreter", "   ", "zzzzzzzzzzzzzzzzzzzzzzzz"}

type fakeStore struct {
	mu      sync.Mutex
	records []*storage.ResultRecord
	updates []*storage.JobUpdate
	err     error
}

func (f *fakeStore) StoreResult(_ context.Context, rec *storage.ResultRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) UpdateJobStatus(_ context.Context, u *storage.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

type fakeUploader struct {
	documents []string
	err       error
}

func (f *fakeUploader) UploadReport(_ context.Context, jobID, documentID string, report []byte) (*clients.Artifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.documents = append(f.documents, documentID)
	return &clients.Artifact{ID: "art-" + documentID}, nil
}

type blockingLoader struct{}

func (blockingLoader) Load(ctx context.Context, _ string, _ source.Request) (*source.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func quietLogger() *logging.Logger {
	return logging.NewLoggerTo(io.Discard, "test", slog.LevelError)
}

func newTestProcessor(t *testing.T, cfg ProcessorConfig) *DocumentProcessor {
	t.Helper()
	if cfg.Producer == nil {
		producer, err := align.NewProducer(align.ProducerConfig{})
		if err != nil {
			t.Fatalf("NewProducer: %v", err)
		}
		cfg.Producer = producer
	}
	if cfg.Loader == nil {
		cfg.Loader = source.NewLoader(source.LoaderConfig{Logger: quietLogger()})
	}
	cfg.Logger = quietLogger()
	p, err := NewDocumentProcessor(&cfg)
	if err != nil {
		t.Fatalf("NewDocumentProcessor: %v", err)
	}
	return p
}

func inlineRequest(jobID, documentID, reference string, lines source.LineList) *ProcessRequest {
	return &ProcessRequest{
		JobID: jobID,
		Request: source.Request{
			DocumentID: documentID,
			Reference:  source.Location{Text: reference},
			OCR:        source.OCRInput{Lines: lines},
		},
		Metadata: map[string]interface{}{"batch": "test"},
	}
}

func TestProcessDocument(t *testing.T) {
	store := &fakeStore{}
	uploader := &fakeUploader{}
	p := newTestProcessor(t, ProcessorConfig{Store: store, Reports: uploader})

	res, err := p.ProcessDocument(context.Background(), inlineRequest("job-1", "1620-1", french, noisyLines))
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	if len(res.Result.Accepted) != 1 || res.Result.Accepted[0].MatchedText != "toujours quelque chose de grave pour arrêter" {
		t.Errorf("accepted = %+v", res.Result.Accepted)
	}
	if res.ReportArtifactID != "art-1620-1" {
		t.Errorf("report artifact = %q", res.ReportArtifactID)
	}

	if len(store.records) != 1 {
		t.Fatalf("stored %d records, want 1", len(store.records))
	}
	rec := store.records[0]
	if rec.JobID != "job-1" || rec.DocumentID != "1620-1" || rec.ReportArtifactID != "art-1620-1" || rec.Metadata["batch"] != "test" {
		t.Errorf("record = %+v", rec)
	}

	report := res.Report
	if report.Lines != 4 || len(report.Accepted) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if got := report.Accepted[0]; got.Index != 1 || got.GroundTruth != "toujours quelque chose de grave pour arrêter" || got.Start != 7 || got.End != 51 {
		t.Errorf("accepted line = %+v", got)
	}
	var indices, reasons []string
	for _, l := range report.Unaligned {
		indices = append(indices, fmt.Sprint(l.Index))
		reasons = append(reasons, l.Reason)
	}
	if want := []string{"0", "2", "3"}; !reflect.DeepEqual(indices, want) {
		t.Errorf("unaligned indices = %v, want %v", indices, want)
	}
	if want := []string{ReasonEmptyLine, ReasonEmptyLine, string(align.ReasonScoreAboveThreshold)}; !reflect.DeepEqual(reasons, want) {
		t.Errorf("unaligned reasons = %v, want %v", reasons, want)
	}
}

func TestProcessDocumentErrors(t *testing.T) {
	cases := []struct {
		name     string
		req      *ProcessRequest
		store    *fakeStore
		wantCode errors.ErrorCode
	}{
		{
			name:     "missing reference",
			req:      inlineRequest("job-2", "1620-2", "", noisyLines),
			wantCode: errors.ErrorUpstreamDataMissing,
		},
		{
			name:     "reference shorter than every line",
			req:      inlineRequest("job-3", "1620-3", "short", source.LineList{"a line that cannot fit"}),
			wantCode: errors.ErrorMalformedInput,
		},
		{
			name:     "no document id and no cote",
			req:      inlineRequest("job-4", "", french, noisyLines),
			wantCode: errors.ErrorMalformedInput,
		},
		{
			name:     "store failure",
			req:      inlineRequest("job-5", "1620-5", french, noisyLines),
			store:    &fakeStore{err: fmt.Errorf("connection refused")},
			wantCode: errors.ErrorStorageFailed,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := ProcessorConfig{}
			if c.store != nil {
				cfg.Store = c.store
			}
			p := newTestProcessor(t, cfg)
			_, err := p.ProcessDocument(context.Background(), c.req)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.CodeOf(err); got != c.wantCode {
				t.Errorf("code = %q, want %q (%v)", got, c.wantCode, err)
			}
		})
	}
}

func TestProcessDocumentReportUploadFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{}
	p := newTestProcessor(t, ProcessorConfig{Store: store, Reports: &fakeUploader{err: fmt.Errorf("503")}})

	res, err := p.ProcessDocument(context.Background(), inlineRequest("job-6", "1620-6", french, noisyLines))
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if res.ReportArtifactID != "" || len(store.records) != 1 {
		t.Errorf("artifact %q, records %d", res.ReportArtifactID, len(store.records))
	}
}

func TestProcessDocumentTimeout(t *testing.T) {
	p := newTestProcessor(t, ProcessorConfig{Loader: blockingLoader{}})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.ProcessDocument(ctx, inlineRequest("job-7", "1620-7", french, noisyLines))
	if got := errors.CodeOf(err); got != errors.ErrorProcessingTimeout {
		t.Errorf("code = %q, want %q (%v)", got, errors.ErrorProcessingTimeout, err)
	}
}

func TestUpdateJobStatus(t *testing.T) {
	store := &fakeStore{}
	p := newTestProcessor(t, ProcessorConfig{Store: store})

	failure := errors.NewMalformedInputError("job-8", "bad lines", nil).ToMap()
	failure["documentId"] = "1620-8"
	if err := p.UpdateJobStatus(context.Background(), "job-8", "failed", failure); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}

	if len(store.updates) != 1 {
		t.Fatalf("got %d updates", len(store.updates))
	}
	u := store.updates[0]
	if u.Status != "failed" || u.ErrorCode != string(errors.ErrorMalformedInput) || u.DocumentID != "1620-8" || u.ErrorMessage == "" {
		t.Errorf("update = %+v", u)
	}

	bare := newTestProcessor(t, ProcessorConfig{})
	if err := bare.UpdateJobStatus(context.Background(), "job-8", "processing", nil); err != nil {
		t.Errorf("status update without a store: %v", err)
	}
}

func TestNewDocumentProcessorRequiresProducer(t *testing.T) {
	if _, err := NewDocumentProcessor(&ProcessorConfig{Loader: blockingLoader{}}); err == nil {
		t.Error("expected an error without a producer")
	}
	if _, err := NewDocumentProcessor(nil); err == nil {
		t.Error("expected an error for a nil config")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{TesseractLanguage: "fra", Align: config.DefaultProfile()}
	store := &fakeStore{}
	p, err := NewFromConfig(cfg, Services{Store: store}, quietLogger())
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if _, err := p.ProcessDocument(context.Background(), inlineRequest("job-9", "1620-9", french, noisyLines)); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if len(store.records) != 1 || len(store.records[0].Result.Accepted) != 1 {
		t.Errorf("records = %+v", store.records)
	}

	cfg.Align.Language = "not a language tag!"
	if _, err := NewFromConfig(cfg, Services{}, quietLogger()); err == nil {
		t.Error("expected an error for an invalid language")
	}
}

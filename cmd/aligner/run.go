package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/alignment-worker/internal/processor"
	"github.com/adverant/nexus/alignment-worker/internal/source"
	"github.com/adverant/nexus/alignment-worker/internal/storage"
)

var (
	runPages          string
	runTranscriptions string
	runOut            string
	runWorkers        int
	runTimeout        time.Duration
	runStore          bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Align every page of a local directory",
	Long: `Align every page prediction (.txt, .hocr) and page image found under
--pages with the transcription <cote>.txt in --transcriptions, and write one
review report per page to --out, named after the page file. Pages that cannot be aligned are reported
and skipped.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runPages, "pages", "", "directory of page predictions and images")
	runCmd.Flags().StringVar(&runTranscriptions, "transcriptions", "", "directory of <cote>.txt transcriptions")
	runCmd.Flags().StringVar(&runOut, "out", "alignments", "directory for review reports")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "pages aligned concurrently (default WORKER_CONCURRENCY)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-page timeout (default PROCESSING_TIMEOUT)")
	runCmd.Flags().BoolVar(&runStore, "store", false, "also persist results to PostgreSQL and Qdrant")
	runCmd.MarkFlagRequired("pages")
	runCmd.MarkFlagRequired("transcriptions")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "Aligner")

	workers := runWorkers
	if workers <= 0 {
		workers = cfg.WorkerConcurrency
	}
	timeout := runTimeout
	if timeout <= 0 {
		timeout = cfg.Timeout()
	}

	var services processor.Services
	if runStore {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("--store needs DATABASE_URL")
		}
		sm, err := storage.NewStorageManager(cfg.DatabaseURL, cfg.QdrantURL, cfg.QdrantCollection)
		if err != nil {
			return err
		}
		defer sm.Close()
		services.Store = sm
	}

	proc, err := processor.NewFromConfig(cfg, services, newLogger(cfg, "Processor"))
	if err != nil {
		return err
	}

	pages, err := source.ScanPages(runPages, runTranscriptions)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("no pages found under %s", runPages)
	}
	if err := os.MkdirAll(runOut, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	reqs := make([]*processor.ProcessRequest, len(pages))
	for i, page := range pages {
		reqs[i] = &processor.ProcessRequest{
			JobID:    uuid.NewString(),
			Request:  page,
			Metadata: map[string]interface{}{"source": "aligner run"},
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logger.Info("Aligning pages", "pages", len(reqs), "workers", workers, "timeout", timeout.String())
	report, runErr := processor.NewBatchRunner(proc, workers, timeout, newLogger(cfg, "Batch")).Run(ctx, reqs)

	names := processor.ReportFileNames(report.Results)
	for i, res := range report.Results {
		if res == nil {
			continue
		}
		if err := writeReport(filepath.Join(runOut, names[i]), res); err != nil {
			logger.Warn("Failed to write review report", "page", res.PageName, "error", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pages: %d aligned, %d failed in %s\n", report.Processed, report.Failed, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "lines: %d accepted, %d rejected, %d skipped\n", report.Accepted, report.Rejected, report.Skipped)
	for _, f := range report.Failures {
		fmt.Fprintf(out, "  failed %s: %v\n", f.Document, f.Err)
	}

	return runErr
}

func writeReport(path string, res *processor.ProcessResult) error {
	data, err := res.Report.JSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

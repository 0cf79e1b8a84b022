package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/alignment-worker/internal/config"
	"github.com/adverant/nexus/alignment-worker/internal/queue"
	"github.com/adverant/nexus/alignment-worker/internal/source"
)

var (
	enqueuePages          string
	enqueueTranscriptions string
	enqueueMetadata       map[string]string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Submit every page of a directory to the alignment workers",
	Long: `Scan --pages the same way "run" does and submit one job per page to the
queue selected by QUEUE_BACKEND. The paths must be readable by the workers.`,
	Args: cobra.NoArgs,
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().StringVar(&enqueuePages, "pages", "", "directory of page predictions and images")
	enqueueCmd.Flags().StringVar(&enqueueTranscriptions, "transcriptions", "", "directory of <cote>.txt transcriptions")
	enqueueCmd.Flags().StringToStringVar(&enqueueMetadata, "metadata", nil, "key=value pairs attached to every job")
	enqueueCmd.MarkFlagRequired("pages")
	enqueueCmd.MarkFlagRequired("transcriptions")
}

func newEnqueuer(cfg *config.Config) (queue.JobEnqueuer, error) {
	if cfg.QueueBackend == config.QueueBackendRedis {
		return queue.NewRedisEnqueuer(cfg.RedisURL, cfg.QueueName)
	}
	return queue.NewEnqueuer(cfg.RedisURL, cfg.QueueName)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "Enqueue")

	pages, err := source.ScanPages(enqueuePages, enqueueTranscriptions)
	if err != nil {
		return err
	}

	enq, err := newEnqueuer(cfg)
	if err != nil {
		return err
	}
	defer enq.Close()

	metadata := make(map[string]interface{}, len(enqueueMetadata))
	for k, v := range enqueueMetadata {
		metadata[k] = v
	}

	var failed int
	for _, page := range pages {
		job := queue.NewJobPayload(page, metadata)
		id, err := enq.Enqueue(cmd.Context(), job)
		if err != nil {
			failed++
			logger.Warn("Failed to enqueue page", "page", page.PageName, "error", err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, page.PageName)
	}

	logger.Info("Pages submitted", "queued", len(pages)-failed, "failed", failed, "backend", cfg.QueueBackend)
	if failed > 0 {
		return fmt.Errorf("%d of %d pages could not be queued", failed, len(pages))
	}
	return nil
}

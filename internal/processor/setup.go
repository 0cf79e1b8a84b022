package processor

import (
	"fmt"

	"github.com/adverant/nexus/alignment-worker/internal/align"
	"github.com/adverant/nexus/alignment-worker/internal/clients"
	"github.com/adverant/nexus/alignment-worker/internal/config"
	"github.com/adverant/nexus/alignment-worker/internal/logging"
	"github.com/adverant/nexus/alignment-worker/internal/source"
	"github.com/adverant/nexus/alignment-worker/internal/textnorm"
)

// Services are the optional network collaborators of a processor
type Services struct {
	Store     ResultStore
	Artifacts *clients.ArtifactClient
}

// NewFromConfig assembles the engine, normalizer and loader described by
// cfg into a processor
func NewFromConfig(cfg *config.Config, svc Services, logger *logging.Logger) (*DocumentProcessor, error) {
	if logger == nil {
		logger = logging.NewLogger("Processor")
	}

	producerCfg, err := cfg.Align.ProducerConfig(logger.With("stage", "align"))
	if err != nil {
		return nil, fmt.Errorf("alignment profile: %w", err)
	}
	producer, err := align.NewProducer(producerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create alignment producer: %w", err)
	}

	normalizer, err := textnorm.New(cfg.Align.FoldCase, cfg.Align.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to create normalizer: %w", err)
	}

	loaderCfg := source.LoaderConfig{
		Recognizer:        source.NewTesseractLineReader(cfg.TesseractLanguage),
		DropTrailingLines: cfg.Align.DropTrailingLines,
		Logger:            logger.With("stage", "load"),
	}
	procCfg := &ProcessorConfig{
		Producer:   producer,
		Normalizer: normalizer,
		Store:      svc.Store,
		Logger:     logger,
	}
	if svc.Artifacts != nil {
		loaderCfg.Artifacts = svc.Artifacts
		procCfg.Reports = svc.Artifacts
	}
	procCfg.Loader = source.NewLoader(loaderCfg)

	return NewDocumentProcessor(procCfg)
}

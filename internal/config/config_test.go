package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adverant/nexus/alignment-worker/internal/align"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("ALIGN_PROFILE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.QueueBackend != QueueBackendAsynq {
		t.Errorf("QueueBackend = %q", cfg.QueueBackend)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
	if cfg.Timeout() != 2*time.Minute {
		t.Errorf("Timeout = %v", cfg.Timeout())
	}
	if cfg.Align.Scorer != align.ScorerHamming || cfg.Align.CompletionThreshold != 3 || cfg.Align.Curate {
		t.Errorf("unexpected default profile %+v", cfg.Align)
	}
	if cfg.Align.Acceptance != align.DefaultAcceptancePolicy() {
		t.Errorf("acceptance = %+v", cfg.Align.Acceptance)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "2")
	t.Setenv("QUEUE_BACKEND", "REDIS")
	t.Setenv("ALIGN_SCORER", "levenshtein")
	t.Setenv("COMPLETION_THRESHOLD", "-1")
	t.Setenv("MONOTONIC_CURATION", "true")
	t.Setenv("FOLD_CASE", "1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.QueueBackend != QueueBackendRedis {
		t.Errorf("QueueBackend = %q", cfg.QueueBackend)
	}
	p := cfg.Align
	if p.Scorer != "levenshtein" || p.CompletionThreshold != -1 || !p.Curate || !p.FoldCase {
		t.Errorf("overrides not applied: %+v", p)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":    {"QUEUE_BACKEND": "kafka"},
		"zero concurrency":   {"WORKER_CONCURRENCY": "0"},
		"tiny timeout":       {"WORKER_CONCURRENCY": "1", "PROCESSING_TIMEOUT": "10"},
		"unknown scorer":     {"WORKER_CONCURRENCY": "1", "ALIGN_SCORER": "dtw"},
		"zero pattern procs": {"WORKER_CONCURRENCY": "1", "ALIGN_PATTERN_WORKERS": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	data := []byte(`scorer: levenshtein
curate: true
dropTrailingLines: 0
acceptance:
  minTextLength: 5
  shortIntercept: 0.1
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Scorer != "levenshtein" || !p.Curate || p.DropTrailingLines != 0 {
		t.Errorf("profile = %+v", p)
	}
	if p.Acceptance.MinTextLength != 5 || p.Acceptance.ShortIntercept != 0.1 {
		t.Errorf("acceptance overrides missing: %+v", p.Acceptance)
	}
	// untouched keys keep their defaults
	if p.Acceptance.LongLength != 60 || p.Acceptance.MidSlope != 0.005 || p.CompletionThreshold != 3 {
		t.Errorf("defaults lost: %+v", p)
	}

	t.Setenv("WORKER_CONCURRENCY", "1")
	t.Setenv("ALIGN_PROFILE", path)
	t.Setenv("ALIGN_SCORER", "hamming")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Align.Scorer != "hamming" || !cfg.Align.Curate {
		t.Errorf("env should override the profile file: %+v", cfg.Align)
	}
}

func TestLoadProfileErrors(t *testing.T) {
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("acceptance: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestProfileProducerConfig(t *testing.T) {
	p := DefaultProfile()
	p.CompletionThreshold = 5
	pc, err := p.ProducerConfig(nil)
	if err != nil {
		t.Fatalf("ProducerConfig: %v", err)
	}
	if pc.Scorer.Name() != align.ScorerHamming || *pc.CompletionThreshold != 5 || pc.Workers != 1 {
		t.Errorf("producer config = %+v", pc)
	}
	if _, err := align.NewProducer(pc); err != nil {
		t.Errorf("NewProducer: %v", err)
	}
}

func TestRequireServices(t *testing.T) {
	cfg := &Config{RedisURL: "redis://localhost:6379"}
	if err := cfg.RequireServices(); err == nil {
		t.Error("expected DATABASE_URL to be required")
	}
	cfg.DatabaseURL = "postgres://localhost/alignment"
	if err := cfg.RequireServices(); err != nil {
		t.Errorf("RequireServices: %v", err)
	}
}

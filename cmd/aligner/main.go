// Command aligner runs the alignment pipeline from the command line: over
// a local directory of pages, by submitting pages to the worker queue, or
// to query the label index.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/alignment-worker/internal/config"
	"github.com/adverant/nexus/alignment-worker/internal/logging"
)

var (
	profilePath string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:           "aligner",
	Short:         "Align OCR line predictions with manual transcriptions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "alignment profile YAML (overrides ALIGN_PROFILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the persistent flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	if profilePath != "" {
		profile, err := config.LoadProfile(profilePath)
		if err != nil {
			return nil, err
		}
		cfg.Align = profile
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, prefix string) *logging.Logger {
	return logging.NewLoggerTo(os.Stderr, prefix, logging.ParseLevel(cfg.LogLevel))
}

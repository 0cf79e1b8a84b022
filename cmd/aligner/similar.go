package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/alignment-worker/internal/storage"
	"github.com/adverant/nexus/alignment-worker/internal/textnorm"
)

var similarLimit int

var similarCmd = &cobra.Command{
	Use:   "similar <text>",
	Short: "Find accepted labels close to a text",
	Long: `Search the label index for ground-truth lines that look like <text>.
Near-identical labels from different pages usually point at a duplicated
scan or a transcription pasted on the wrong letter.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)
	similarCmd.Flags().IntVar(&similarLimit, "limit", 10, "maximum number of labels returned")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	normalizer, err := textnorm.New(cfg.Align.FoldCase, cfg.Align.Language)
	if err != nil {
		return err
	}
	text := normalizer.String(strings.Join(args, " "))

	index, err := storage.NewLabelIndex(cfg.QdrantURL, cfg.QdrantCollection)
	if err != nil {
		return err
	}
	defer index.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	matches, err := index.SearchSimilar(ctx, text, similarLimit)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no similar labels")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIMILARITY\tDOCUMENT\tLINE\tLABEL")
	for _, m := range matches {
		fmt.Fprintf(w, "%.3f\t%v\t%v\t%v\n",
			m.Similarity, m.Metadata["document_id"], m.Metadata["pattern_index"], m.Metadata["matched_text"])
	}
	return w.Flush()
}

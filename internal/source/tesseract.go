/**
 * Tesseract line recognition
 *
 * Used when a page arrives as an image without predictions. Tesseract runs
 * at text-line level so that every recognized line keeps its own box.
 */

package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// LineRecognizer turns a page image into predicted lines
type LineRecognizer interface {
	RecognizeLines(ctx context.Context, image []byte) ([]Line, error)
}

// TesseractLineReader recognizes lines with the local Tesseract install
type TesseractLineReader struct {
	languages []string
}

// NewTesseractLineReader creates a reader for the given "+"-separated
// tesseract languages, e.g. "fra" or "fra+lat"
func NewTesseractLineReader(languages string) *TesseractLineReader {
	var langs []string
	for _, l := range strings.Split(languages, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return &TesseractLineReader{languages: langs}
}

// RecognizeLines runs Tesseract over image and returns its text lines in
// reading order
func (t *TesseractLineReader) RecognizeLines(ctx context.Context, image []byte) ([]Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(t.languages) > 0 {
		if err := client.SetLanguage(t.languages...); err != nil {
			return nil, fmt.Errorf("failed to set languages: %w", err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract line recognition failed: %w", err)
	}

	lines := make([]Line, len(boxes))
	for i, b := range boxes {
		lines[i] = Line{
			Index:      i,
			Text:       strings.TrimRight(b.Word, " \n"),
			Box:        b.Box,
			Confidence: b.Confidence,
		}
	}
	return lines, nil
}

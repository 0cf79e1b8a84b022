/**
 * Upstream records for the alignment worker
 *
 * A Document pairs the manual transcription of a letter page with the
 * lines an HTR/OCR engine predicted for it. Line.Index is the position in
 * the segmentation output and is what every alignment points back to.
 */

package source

import (
	"encoding/json"
	"fmt"
	"image"
	"regexp"
	"strings"
)

// OCR line formats
const (
	FormatText  = "text"
	FormatHOCR  = "hocr"
	FormatImage = "image"
)

// Line is one predicted text line
type Line struct {
	Index      int             `json:"index"`
	ID         string          `json:"id,omitempty"`
	Text       string          `json:"text"`
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence,omitempty"`
}

// Document is the input of one alignment run
type Document struct {
	ID        string `json:"id"`
	PageName  string `json:"pageName,omitempty"`
	Reference string `json:"reference"`
	Lines     []Line `json:"lines"`
}

// Patterns returns the line texts in index order
func (d *Document) Patterns() []string {
	out := make([]string, len(d.Lines))
	for i, l := range d.Lines {
		out[i] = l.Text
	}
	return out
}

// Location says where an input can be read from. Exactly one field is set.
// An inline reference Text is used as given; references read from a path,
// URL or artifact are transcription files and lose their trailing
// autograph lines.
type Location struct {
	Text       string `json:"text,omitempty"`
	Path       string `json:"path,omitempty"`
	URL        string `json:"url,omitempty"`
	ArtifactID string `json:"artifactId,omitempty"`
}

// IsZero reports whether no location is set
func (l Location) IsZero() bool {
	return l == Location{}
}

// String describes the location for logs and error details
func (l Location) String() string {
	switch {
	case l.Path != "":
		return l.Path
	case l.URL != "":
		return l.URL
	case l.ArtifactID != "":
		return "artifact:" + l.ArtifactID
	case l.Text != "":
		return "inline"
	default:
		return "none"
	}
}

// LineList is a list of predictions that also decodes from a single
// newline-joined JSON string
type LineList []string

func (l *LineList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("lines must be an array of strings or a string: %w", err)
	}
	*l = SplitLines(joined)
	return nil
}

// OCRInput locates the predicted lines of a page
type OCRInput struct {
	Format string   `json:"format,omitempty"`
	Lines  LineList `json:"lines,omitempty"`
	Location
}

// Request asks for one document to be loaded
type Request struct {
	DocumentID string   `json:"documentId"`
	PageName   string   `json:"pageName,omitempty"`
	Reference  Location `json:"reference"`
	OCR        OCRInput `json:"ocr"`
}

var cotePattern = regexp.MustCompile(`\d+(?:-\d+)*`)

// CoteFromFilename extracts the archive identifier from a page image name,
// e.g. "Ms1620-1-10.jpg" gives "1620-1-10"
func CoteFromFilename(name string) (string, bool) {
	cote := cotePattern.FindString(name)
	return cote, cote != ""
}

// SplitLines splits on LF, drops the CR of CRLF endings and ignores the
// empty string after a final newline. Blank lines are kept.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	return strings.Split(s, "\n")
}

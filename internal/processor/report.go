package processor

import (
	"encoding/json"
	"image"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adverant/nexus/alignment-worker/internal/align"
	"github.com/adverant/nexus/alignment-worker/internal/source"
)

// Reasons a line shows up as unaligned in a review report, in addition to
// the engine's rejection reasons
const (
	ReasonEmptyLine     = "empty_line"
	ReasonLineTooLong   = "longer_than_reference"
	reviewReportVersion = 1
)

// Report is the review view of one aligned page. Accepted lines carry their
// ground truth; unaligned lines are the ones a reviewer has to label.
type Report struct {
	Version    int          `json:"version"`
	JobID      string       `json:"jobId,omitempty"`
	DocumentID string       `json:"documentId"`
	PageName   string       `json:"pageName,omitempty"`
	Lines      int          `json:"lines"`
	Accepted   []ReportLine `json:"accepted"`
	Unaligned  []ReportLine `json:"unaligned"`
}

// ReportLine is one OCR line of the page
type ReportLine struct {
	Index       int              `json:"index"`
	LineID      string           `json:"lineId,omitempty"`
	Box         *image.Rectangle `json:"box,omitempty"`
	OCR         string           `json:"ocr"`
	GroundTruth string           `json:"groundTruth,omitempty"`
	Candidate   string           `json:"candidate,omitempty"`
	Score       *float64         `json:"score,omitempty"`
	Start       int              `json:"start,omitempty"`
	End         int              `json:"end,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

// BuildReport joins a result with the lines it was computed from
func BuildReport(jobID string, doc *source.Document, res *align.Result) *Report {
	r := &Report{
		Version:    reviewReportVersion,
		JobID:      jobID,
		DocumentID: res.DocumentID,
		PageName:   doc.PageName,
		Lines:      len(doc.Lines),
		Accepted:   make([]ReportLine, 0, len(res.Accepted)),
		Unaligned:  make([]ReportLine, 0, len(res.Rejected)+len(res.Skipped)),
	}

	for _, a := range res.Accepted {
		line := reportLine(doc, a.PatternIndex)
		line.GroundTruth = a.MatchedText
		line.Score = score(a.Score)
		line.Start, line.End = a.Start, a.End
		r.Accepted = append(r.Accepted, line)
	}

	for _, rej := range res.Rejected {
		line := reportLine(doc, rej.PatternIndex)
		line.Candidate = rej.MatchedText
		line.Score = score(rej.Score)
		line.Reason = string(rej.Reason)
		r.Unaligned = append(r.Unaligned, line)
	}

	for _, i := range res.Skipped {
		line := reportLine(doc, i)
		line.Reason = ReasonLineTooLong
		if strings.TrimSpace(line.OCR) == "" {
			line.Reason = ReasonEmptyLine
		}
		r.Unaligned = append(r.Unaligned, line)
	}
	sort.SliceStable(r.Unaligned, func(i, j int) bool { return r.Unaligned[i].Index < r.Unaligned[j].Index })

	return r
}

// JSON encodes the report for upload
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func reportLine(doc *source.Document, index int) ReportLine {
	line := ReportLine{Index: index}
	if index < 0 || index >= len(doc.Lines) {
		return line
	}
	l := doc.Lines[index]
	line.LineID = l.ID
	line.OCR = l.Text
	if !l.Box.Empty() {
		box := l.Box
		line.Box = &box
	}
	return line
}

func score(s float64) *float64 {
	return &s
}

// ReportFileNames names the review report of every result after its page
// file, so pages of one letter sharing a cote do not overwrite each other.
// Names that would still collide get the job ID appended. Nil results get
// an empty name.
func ReportFileNames(results []*ProcessResult) []string {
	names := make([]string, len(results))
	used := make(map[string]bool, len(results))
	for i, res := range results {
		if res == nil {
			continue
		}
		stem := strings.TrimSuffix(res.PageName, filepath.Ext(res.PageName))
		if stem == "" {
			stem = res.DocumentID
		}
		if stem == "" {
			stem = res.JobID
		}
		if used[stem] {
			stem += "_" + res.JobID
		}
		used[stem] = true
		names[i] = stem + ".alignment.json"
	}
	return names
}

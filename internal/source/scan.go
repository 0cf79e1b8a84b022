package source

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

var formatByExt = map[string]string{
	".txt":  FormatText,
	".hocr": FormatHOCR,
	".html": FormatHOCR,
	".jpg":  FormatImage,
	".jpeg": FormatImage,
	".png":  FormatImage,
	".tif":  FormatImage,
	".tiff": FormatImage,
}

// formatPreference orders the inputs of one page: hOCR carries line boxes,
// plain predictions need no recognition, images are recognized last
var formatPreference = map[string]int{
	FormatHOCR:  0,
	FormatText:  1,
	FormatImage: 2,
}

// FormatForPath guesses the OCR format of a file from its extension
func FormatForPath(path string) (string, bool) {
	f, ok := formatByExt[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// ScanPages walks pagesDir for page predictions (text or hOCR) and page
// images and pairs each with the transcription <cote>.txt found in
// transcriptionsDir. Pages whose name holds no cote are returned without a
// document ID and fail when loaded. When a page has several inputs with the
// same stem in one directory (an image next to its prediction), only the
// preferred one is kept. Requests are sorted by path.
func ScanPages(pagesDir, transcriptionsDir string) ([]Request, error) {
	pagesAbs, err := filepath.Abs(pagesDir)
	if err != nil {
		return nil, err
	}
	transAbs, err := filepath.Abs(transcriptionsDir)
	if err != nil {
		return nil, err
	}
	if pagesAbs == transAbs {
		return nil, fmt.Errorf("pages and transcriptions must live in different directories")
	}

	var reqs []Request
	err = filepath.WalkDir(pagesAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == transAbs {
				return filepath.SkipDir
			}
			return nil
		}
		format, ok := FormatForPath(path)
		if !ok {
			return nil
		}

		name := d.Name()
		req := Request{
			PageName: name,
			OCR:      OCRInput{Format: format, Location: Location{Path: path}},
		}
		if cote, ok := CoteFromFilename(name); ok {
			req.DocumentID = cote
			req.Reference = Location{Path: filepath.Join(transAbs, cote+".txt")}
		}
		reqs = append(reqs, req)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", pagesDir, err)
	}

	sortByPath(reqs)
	reqs = dedupePages(reqs)
	sortByPath(reqs)
	return reqs, nil
}

func sortByPath(reqs []Request) {
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].OCR.Path < reqs[j].OCR.Path })
}

// dedupePages keeps one request per directory and file stem. Among inputs
// of the same format the first in reqs wins.
func dedupePages(reqs []Request) []Request {
	kept := make(map[string]int, len(reqs))
	out := reqs[:0]
	for _, r := range reqs {
		key := strings.TrimSuffix(r.OCR.Path, filepath.Ext(r.OCR.Path))
		i, seen := kept[key]
		if !seen {
			kept[key] = len(out)
			out = append(out, r)
			continue
		}
		if formatPreference[r.OCR.Format] < formatPreference[out[i].OCR.Format] {
			out[i] = r
		}
	}
	return out
}

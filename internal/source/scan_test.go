package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanPages(t *testing.T) {
	root := t.TempDir()
	pages := filepath.Join(root, "pages")
	trans := filepath.Join(root, "transcriptions")
	for _, dir := range []string{filepath.Join(pages, "box-2"), trans} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	files := []string{
		filepath.Join(pages, "Ms1620-1-10.txt"),
		filepath.Join(pages, "box-2", "Ms1620-2-3.hocr"),
		filepath.Join(pages, "Ms1620-1-11.JPG"),
		filepath.Join(pages, "cover.png"),
		filepath.Join(pages, "notes.md"),
	}
	for _, f := range files {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	reqs, err := ScanPages(pages, trans)
	if err != nil {
		t.Fatalf("ScanPages: %v", err)
	}
	if len(reqs) != 4 {
		t.Fatalf("got %d requests, want 4: %+v", len(reqs), reqs)
	}

	byName := map[string]Request{}
	for _, r := range reqs {
		byName[r.PageName] = r
	}

	cases := []struct {
		page, format, doc string
	}{
		{"Ms1620-1-10.txt", FormatText, "1620-1-10"},
		{"Ms1620-2-3.hocr", FormatHOCR, "1620-2-3"},
		{"Ms1620-1-11.JPG", FormatImage, "1620-1-11"},
		{"cover.png", FormatImage, ""},
	}
	for _, c := range cases {
		r, ok := byName[c.page]
		if !ok {
			t.Errorf("page %s not found", c.page)
			continue
		}
		if r.OCR.Format != c.format || r.DocumentID != c.doc {
			t.Errorf("%s: format %q doc %q, want %q %q", c.page, r.OCR.Format, r.DocumentID, c.format, c.doc)
		}
		if c.doc != "" && r.Reference.Path != filepath.Join(trans, c.doc+".txt") {
			t.Errorf("%s: reference %q", c.page, r.Reference.Path)
		}
		if c.doc == "" && !r.Reference.IsZero() {
			t.Errorf("%s: reference should be empty, got %+v", c.page, r.Reference)
		}
	}

	for i := 1; i < len(reqs); i++ {
		if reqs[i-1].OCR.Path > reqs[i].OCR.Path {
			t.Errorf("requests not sorted: %s before %s", reqs[i-1].OCR.Path, reqs[i].OCR.Path)
		}
	}
}

func TestScanPagesRejectsSameDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := ScanPages(dir, dir); err == nil {
		t.Error("expected an error when pages and transcriptions share a directory")
	}
}

func TestScanPagesKeepsOneInputPerPage(t *testing.T) {
	root := t.TempDir()
	pages := filepath.Join(root, "pages")
	trans := filepath.Join(root, "transcriptions")
	for _, dir := range []string{pages, trans} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"Ms1620-1_p1.jpg", "Ms1620-1_p1.txt", "Ms1620-1_p2.png", "Ms1620-1_p2.hocr", "Ms1620-1_p2.txt"} {
		if err := os.WriteFile(filepath.Join(pages, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	reqs, err := ScanPages(pages, trans)
	if err != nil {
		t.Fatalf("ScanPages: %v", err)
	}

	want := []struct{ page, format string }{
		{"Ms1620-1_p1.txt", FormatText},
		{"Ms1620-1_p2.hocr", FormatHOCR},
	}
	if len(reqs) != len(want) {
		t.Fatalf("got %d requests, want %d: %+v", len(reqs), len(want), reqs)
	}
	for i, w := range want {
		if reqs[i].PageName != w.page || reqs[i].OCR.Format != w.format {
			t.Errorf("request %d = %s (%s), want %s (%s)", i, reqs[i].PageName, reqs[i].OCR.Format, w.page, w.format)
		}
		if reqs[i].DocumentID != "1620-1" {
			t.Errorf("request %d document = %q, want 1620-1", i, reqs[i].DocumentID)
		}
	}
}

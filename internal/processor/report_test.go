package processor

import (
	"reflect"
	"testing"
)

func TestReportFileNames(t *testing.T) {
	results := []*ProcessResult{
		{JobID: "job-a", DocumentID: "1620-1", PageName: "Ms1620-1_p1.txt"},
		nil,
		{JobID: "job-b", DocumentID: "1620-1", PageName: "Ms1620-1_p2.hocr"},
		{JobID: "job-c", DocumentID: "1620-1", PageName: "Ms1620-1_p1.jpg"},
		{JobID: "job-d", DocumentID: "1621-4"},
		{JobID: "job-e"},
	}

	want := []string{
		"Ms1620-1_p1.alignment.json",
		"",
		"Ms1620-1_p2.alignment.json",
		"Ms1620-1_p1_job-c.alignment.json",
		"1621-4.alignment.json",
		"job-e.alignment.json",
	}
	if got := ReportFileNames(results); !reflect.DeepEqual(got, want) {
		t.Errorf("ReportFileNames() = %v\nwant %v", got, want)
	}
}

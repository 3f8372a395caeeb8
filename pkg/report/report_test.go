package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"mercator-hq/auditor/pkg/audit"
)

func sampleJob() (*audit.Job, []audit.AuditResult) {
	job := &audit.Job{
		ID:             "job-1",
		Name:           "quarterly",
		RuleSetID:      "insurance",
		RuleSetVersion: "1.0.0",
		DocumentIDs:    []string{"a.txt", "b.txt"},
		Status:         audit.JobCompleted,
		CompletedTasks: 2,
	}
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	results := []audit.AuditResult{
		{
			JobID: "job-1", DocumentID: "a.txt", RuleID: "kw", Status: audit.StatusPassed,
			Score: 1, Threshold: 0.5, AuditTime: at,
			Evidences:      []audit.Evidence{{Text: "保险"}, {Text: "条款"}},
			Recommendation: "ok",
		},
		{
			JobID: "job-1", DocumentID: "b.txt", RuleID: "kw", Status: audit.StatusFailed,
			Threshold: 0.5, AuditTime: at, Evidences: []audit.Evidence{},
			Recommendation: "fix, \"quoted\"",
		},
	}
	job.Summary = audit.Summarize(results)
	return job, results
}

func TestExporter_Formats(t *testing.T) {
	job, results := sampleJob()
	e := NewExporter(nil, nil)

	t.Run("json", func(t *testing.T) {
		a, err := e.Export(context.Background(), "", job, results)
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		if a.Format != "json" || a.Name != "audit-job-1.json" {
			t.Errorf("artifact = %+v", a)
		}
		var doc struct {
			Job     audit.Job           `json:"job"`
			Results []audit.AuditResult `json:"results"`
		}
		if err := json.Unmarshal(a.Data, &doc); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if doc.Job.ID != "job-1" || len(doc.Results) != 2 {
			t.Errorf("decoded %+v", doc)
		}
	})

	t.Run("csv", func(t *testing.T) {
		a, err := e.Export(context.Background(), "CSV", job, results)
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		records, err := csv.NewReader(bytes.NewReader(a.Data)).ReadAll()
		if err != nil {
			t.Fatalf("invalid csv: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("got %d rows, want header + 2", len(records))
		}
		if records[1][9] != "保险; 条款" {
			t.Errorf("evidence column = %q", records[1][9])
		}
		if records[2][10] != "fix, \"quoted\"" {
			t.Errorf("recommendation column = %q", records[2][10])
		}
	})

	t.Run("xlsx", func(t *testing.T) {
		a, err := e.Export(context.Background(), "xlsx", job, results)
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		f, err := excelize.OpenReader(bytes.NewReader(a.Data))
		if err != nil {
			t.Fatalf("invalid workbook: %v", err)
		}
		defer f.Close()
		rows, err := f.GetRows(resultsSheet)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 3 || rows[2][5] != "FAILED" {
			t.Errorf("results sheet = %v", rows)
		}
		if v, _ := f.GetCellValue(summarySheet, "B1"); v != "job-1" {
			t.Errorf("summary job id = %q", v)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := e.Export(context.Background(), "docx", job, results)
		var rerr *audit.ReportError
		if !errors.As(err, &rerr) || rerr.Format != "docx" {
			t.Errorf("error = %v, want *audit.ReportError", err)
		}
	})
}

func TestExporter_FileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatal(err)
	}
	job, results := sampleJob()
	a, err := NewExporter(sink, nil, WithDefaultFormat("csv")).Export(context.Background(), "", job, results)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.HasSuffix(a.Location, "audit-job-1.csv") {
		t.Errorf("location = %q", a.Location)
	}
	data, err := os.ReadFile(a.Location)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, a.Data) {
		t.Error("file content differs from artifact data")
	}
}

type failingSink struct{}

func (failingSink) Put(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func TestExporter_SinkFailure(t *testing.T) {
	job, results := sampleJob()
	_, err := NewExporter(failingSink{}, nil).Export(context.Background(), "json", job, results)
	var rerr *audit.ReportError
	if !errors.As(err, &rerr) {
		t.Fatalf("error = %v, want *audit.ReportError", err)
	}
}

func TestTruncate(t *testing.T) {
	s := strings.Repeat("保", 10) // 30 bytes
	got := truncate(s, 10)
	if got != strings.Repeat("保", 3)+"…" {
		t.Errorf("truncate = %q", got)
	}
	if truncate("short", 10) != "short" {
		t.Error("short string changed")
	}
}

func TestNewMinIOSink_RequiresEndpoint(t *testing.T) {
	if _, err := NewMinIOSink(MinIOConfig{}, nil); err == nil {
		t.Error("NewMinIOSink() with empty endpoint succeeded")
	}
	s, err := NewMinIOSink(MinIOConfig{Endpoint: "localhost:9000", Prefix: "reports"}, nil)
	if err != nil {
		t.Fatalf("NewMinIOSink() error = %v", err)
	}
	if got := s.objectName("audit-1.json"); got != "reports/audit-1.json" {
		t.Errorf("objectName = %q", got)
	}
	if s.config.Bucket != "audit-reports" {
		t.Errorf("default bucket = %q", s.config.Bucket)
	}
}

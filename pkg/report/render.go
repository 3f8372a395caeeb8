package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"mercator-hq/auditor/pkg/audit"
)

// JSONRenderer writes {"job": ..., "results": [...]}.
type JSONRenderer struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONRenderer creates a JSON renderer.
func NewJSONRenderer(pretty bool) *JSONRenderer {
	return &JSONRenderer{Pretty: pretty}
}

func (r *JSONRenderer) Format() string      { return "json" }
func (r *JSONRenderer) ContentType() string { return "application/json" }

func (r *JSONRenderer) Render(_ context.Context, job *audit.Job, results []audit.AuditResult, w io.Writer) error {
	if results == nil {
		results = []audit.AuditResult{}
	}
	enc := json.NewEncoder(w)
	if r.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(struct {
		Job     *audit.Job          `json:"job"`
		Results []audit.AuditResult `json:"results"`
	}{job, results})
}

// resultColumns is shared by the CSV and XLSX result tables.
var resultColumns = []string{
	"job_id", "document_id", "rule_id", "rule_name", "rule_version",
	"status", "score", "threshold", "evidence_count", "evidence",
	"recommendation", "audit_time",
}

// maxEvidenceText bounds the flattened evidence column.
const maxEvidenceText = 500

func resultRow(res audit.AuditResult) []string {
	texts := make([]string, 0, len(res.Evidences))
	for _, ev := range res.Evidences {
		texts = append(texts, ev.Text)
	}
	evidence := strings.Join(texts, "; ")
	if len(evidence) > maxEvidenceText {
		evidence = truncate(evidence, maxEvidenceText)
	}
	auditTime := ""
	if !res.AuditTime.IsZero() {
		auditTime = res.AuditTime.UTC().Format(time.RFC3339)
	}
	return []string{
		res.JobID,
		res.DocumentID,
		res.RuleID,
		res.RuleName,
		res.RuleVersion,
		string(res.Status),
		strconv.FormatFloat(res.Score, 'f', 4, 64),
		strconv.FormatFloat(res.Threshold, 'f', 4, 64),
		strconv.Itoa(len(res.Evidences)),
		evidence,
		res.Recommendation,
		auditTime,
	}
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// CSVRenderer writes one row per audit result.
type CSVRenderer struct {
	// IncludeHeader writes the column names first.
	IncludeHeader bool
}

// NewCSVRenderer creates a CSV renderer.
func NewCSVRenderer(includeHeader bool) *CSVRenderer {
	return &CSVRenderer{IncludeHeader: includeHeader}
}

func (r *CSVRenderer) Format() string      { return "csv" }
func (r *CSVRenderer) ContentType() string { return "text/csv" }

func (r *CSVRenderer) Render(ctx context.Context, _ *audit.Job, results []audit.AuditResult, w io.Writer) error {
	writer := csv.NewWriter(w)
	if r.IncludeHeader {
		if err := writer.Write(resultColumns); err != nil {
			return err
		}
	}
	for i, res := range results {
		if i%100 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := writer.Write(resultRow(res)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// XLSXRenderer writes a workbook with a Summary and a Results sheet.
type XLSXRenderer struct{}

// NewXLSXRenderer creates an XLSX renderer.
func NewXLSXRenderer() *XLSXRenderer { return &XLSXRenderer{} }

func (r *XLSXRenderer) Format() string { return "xlsx" }
func (r *XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

const (
	summarySheet = "Summary"
	resultsSheet = "Results"
)

func (r *XLSXRenderer) Render(_ context.Context, job *audit.Job, results []audit.AuditResult, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(resultsSheet); err != nil {
		return err
	}

	summary := job.Summary
	if summary == nil {
		summary = audit.Summarize(results)
	}
	rows := [][2]any{
		{"Job ID", job.ID},
		{"Name", job.Name},
		{"Rule set", fmt.Sprintf("%s@%s", job.RuleSetID, job.RuleSetVersion)},
		{"Status", string(job.Status)},
		{"Documents", len(job.DocumentIDs)},
		{"Completed", job.CompletedTasks},
		{"Failed", job.FailedTasks},
		{"Total results", summary.TotalRules},
		{"Passed", summary.PassedRules},
		{"Warnings", summary.WarningRules},
		{"Failed results", summary.FailedRules},
		{"Pass rate (%)", summary.PassRate},
	}
	for i, kv := range rows {
		for col, v := range kv {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+1)
			if err := f.SetCellValue(summarySheet, cell, v); err != nil {
				return err
			}
		}
	}

	for col, h := range resultColumns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(resultsSheet, cell, h); err != nil {
			return err
		}
	}
	for i, res := range results {
		for col, v := range resultRow(res) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(resultsSheet, cell, v); err != nil {
				return err
			}
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)
	_ = f.SetColWidth(resultsSheet, "A", "E", 20)
	_ = f.SetColWidth(resultsSheet, "J", "K", 60)

	_, err := f.WriteTo(w)
	return err
}

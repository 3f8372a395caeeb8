package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"mercator-hq/auditor/pkg/audit"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is an aligned table (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV with a header row.
	FormatCSV OutputFormat = "csv"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", NewConfigError("output", fmt.Sprintf("unknown format %q (valid: text, json, csv)", s))
	}
}

// Tabular is data that renders as rows. StatusColumn is the index of the
// column colored by status in text output, or -1.
type Tabular interface {
	Header() []string
	Rows() [][]string
	StatusColumn() int
}

// Formatter formats command output.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// TextFormatter prints Tabular data as an aligned table and anything else
// with %v.
type TextFormatter struct{}

// FormatTo writes data to w.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	t, ok := data.(Tabular)
	if !ok {
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Header(), "\t"))
	col := t.StatusColumn()
	for _, row := range t.Rows() {
		if col >= 0 && col < len(row) {
			row = append([]string(nil), row...)
			row[col] = ColorStatus(row[col])
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTo writes data to w. Tabular views are encoded as their underlying
// values.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	if v, ok := data.(interface{ Value() any }); ok {
		data = v.Value()
	}
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}

// CSVFormatter formats Tabular output as CSV.
type CSVFormatter struct{}

// FormatTo writes data to w.
func (f *CSVFormatter) FormatTo(w io.Writer, data any) error {
	t, ok := data.(Tabular)
	if !ok {
		return fmt.Errorf("CSV output is not supported for %T", data)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows()); err != nil {
		return err
	}
	return cw.Error()
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TextFormatter{}
	}
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// ColorStatus colors a job or result status for terminals. Colors are
// dropped automatically when stdout is not a terminal or NO_COLOR is set.
func ColorStatus(s string) string {
	switch s {
	case string(audit.StatusPassed), string(audit.JobCompleted):
		return green(s)
	case string(audit.StatusFailed), string(audit.StatusError), string(audit.JobFailed):
		return red(s)
	case string(audit.StatusWarning):
		return yellow(s)
	case string(audit.JobRunning), string(audit.JobCreated):
		return cyan(s)
	case string(audit.StatusNoMatch):
		return faint(s)
	}
	return s
}

// JobsView renders jobs.
type JobsView []*audit.Job

func (v JobsView) Value() any { return []*audit.Job(v) }

func (v JobsView) Header() []string {
	return []string{"ID", "NAME", "RULE SET", "STATUS", "PROGRESS", "DOCUMENTS", "FAILED", "CREATED"}
}

func (v JobsView) StatusColumn() int { return 3 }

func (v JobsView) Rows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, j := range v {
		ruleSet := j.RuleSetID
		if j.RuleSetVersion != "" {
			ruleSet += "@" + j.RuleSetVersion
		}
		rows = append(rows, []string{
			j.ID,
			j.Name,
			ruleSet,
			string(j.Status),
			strconv.Itoa(j.Progress) + "%",
			strconv.Itoa(j.TotalTasks),
			strconv.Itoa(j.FailedTasks),
			j.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}

// ResultsView renders audit results.
type ResultsView []audit.AuditResult

func (v ResultsView) Value() any { return []audit.AuditResult(v) }

func (v ResultsView) Header() []string {
	return []string{"DOCUMENT", "RULE", "STATUS", "SCORE", "EVIDENCE", "RECOMMENDATION"}
}

func (v ResultsView) StatusColumn() int { return 2 }

func (v ResultsView) Rows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, r := range v {
		rule := r.RuleName
		if rule == "" {
			rule = r.RuleID
		}
		rows = append(rows, []string{
			r.DocumentID,
			rule,
			string(r.Status),
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			strconv.Itoa(len(r.Evidences)),
			r.Recommendation,
		})
	}
	return rows
}

// Package report renders finished audit jobs and stores the artifacts.
//
// # Formats
//
//   - json: the job and its results as one document
//   - csv: one row per audit result, evidence flattened
//   - xlsx: a Summary sheet and a Results sheet
//
// # Sinks
//
// Rendered reports are handed to a Sink: a local directory (FileSink) or an
// S3-compatible bucket (MinIOSink). Export failures never fail the job; the
// orchestrator logs them.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"mercator-hq/auditor/pkg/audit"
)

// Renderer writes one report format.
type Renderer interface {
	Format() string
	ContentType() string
	Render(ctx context.Context, job *audit.Job, results []audit.AuditResult, w io.Writer) error
}

// Sink stores a rendered report and returns where it went.
type Sink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (location string, err error)
}

// Exporter implements audit.ReportExporter on top of the registered renderers
// and a sink.
type Exporter struct {
	renderers     map[string]Renderer
	defaultFormat string
	sink          Sink
	logger        *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithRenderer registers or replaces the renderer for r.Format().
func WithRenderer(r Renderer) Option {
	return func(e *Exporter) { e.renderers[r.Format()] = r }
}

// WithDefaultFormat sets the format used when a job does not request one.
func WithDefaultFormat(format string) Option {
	return func(e *Exporter) { e.defaultFormat = strings.ToLower(format) }
}

// NewExporter creates an exporter with the json, csv and xlsx renderers. A nil
// sink keeps the artifact in memory only (Artifact.Data).
func NewExporter(sink Sink, logger *slog.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Exporter{
		renderers:     make(map[string]Renderer),
		defaultFormat: "json",
		sink:          sink,
		logger:        logger.With("component", "report"),
	}
	for _, r := range []Renderer{NewJSONRenderer(true), NewCSVRenderer(true), NewXLSXRenderer()} {
		e.renderers[r.Format()] = r
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Formats lists the registered formats.
func (e *Exporter) Formats() []string {
	out := make([]string, 0, len(e.renderers))
	for f := range e.renderers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Export renders job and stores the artifact. Errors are *audit.ReportError.
func (e *Exporter) Export(ctx context.Context, format string, job *audit.Job, results []audit.AuditResult) (*audit.Artifact, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = e.defaultFormat
	}
	r, ok := e.renderers[format]
	if !ok {
		return nil, &audit.ReportError{Format: format, Cause: fmt.Errorf("unsupported format (supported: %s)", strings.Join(e.Formats(), ", "))}
	}

	var buf bytes.Buffer
	if err := r.Render(ctx, job, results, &buf); err != nil {
		return nil, &audit.ReportError{Format: format, Cause: err}
	}

	artifact := &audit.Artifact{
		Format:      format,
		Name:        fmt.Sprintf("audit-%s.%s", job.ID, format),
		ContentType: r.ContentType(),
		Size:        int64(buf.Len()),
		Data:        buf.Bytes(),
	}
	if e.sink != nil {
		loc, err := e.sink.Put(ctx, artifact.Name, artifact.ContentType, artifact.Data)
		if err != nil {
			return nil, &audit.ReportError{Format: format, Cause: err}
		}
		artifact.Location = loc
	}

	e.logger.Info("report exported",
		"job_id", job.ID,
		"format", format,
		"size", artifact.Size,
		"location", artifact.Location,
	)
	return artifact, nil
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/auditor/pkg/audit"
	"mercator-hq/auditor/pkg/telemetry/logging"
	"mercator-hq/auditor/pkg/telemetry/tracing"
)

// execute runs the job to a terminal state. It returns a non-nil error when
// the job ended FAILED.
func (o *Orchestrator) execute(ctx context.Context, jobID string) (err error) {
	ctx = logging.WithJobID(ctx, jobID)
	ctx, span := o.tracer.Start(ctx, "audit.job", trace.WithAttributes(attribute.String(tracing.AttrJobID, jobID)))
	defer func() {
		tracing.SetError(span, err)
		span.End()
	}()

	// Store writes must land even after cancellation.
	storeCtx := context.WithoutCancel(ctx)
	started := o.now().UTC()

	job, err := o.store.UpdateJob(storeCtx, jobID, func(j *audit.Job) error {
		j.Status = audit.JobRunning
		j.StartTime = &started
		return nil
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to start job", "error", err)
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	ctx = logging.WithRuleSetID(ctx, job.RuleSetID)
	span.SetAttributes(tracing.JobAttributes(job)...)
	o.logger.InfoContext(ctx, "job started", "documents", job.TotalTasks)

	if err := ctx.Err(); err != nil {
		return o.finishFailed(ctx, jobID, started, fmt.Errorf("%w before start", audit.ErrJobCancelled))
	}

	rs, err := o.rules.GetEffectiveRuleSet(ctx, job.RuleSetID)
	if err != nil {
		return o.finishFailed(ctx, jobID, started, fmt.Errorf("load rule set %s: %w", job.RuleSetID, err))
	}
	if rs == nil {
		return o.finishFailed(ctx, jobID, started, audit.NewNotFoundError("rule_set", job.RuleSetID))
	}
	if _, err := o.store.UpdateJob(storeCtx, jobID, func(j *audit.Job) error {
		j.RuleSetVersion = rs.Version
		return nil
	}); err != nil {
		return fmt.Errorf("bind rule set version: %w", err)
	}
	active := rs.ActiveRules()
	span.SetAttributes(
		attribute.String(tracing.AttrRuleSetVersion, rs.Version),
		attribute.Int(tracing.AttrRuleCount, len(active)),
	)

	var all []audit.AuditResult
	for _, docID := range job.DocumentIDs {
		if ctx.Err() != nil {
			return o.finishFailed(ctx, jobID, started, audit.ErrJobCancelled)
		}

		docStart := time.Now()
		results, derr := o.processDocument(ctx, jobID, rs, active, docID)
		outcome := "success"
		if derr != nil {
			outcome = "failure"
			o.logger.WarnContext(ctx, "document failed", "document_id", docID, "error", derr)
			o.security.AuditLog(ctx, audit.ActionDocumentAudit, derr.Error(), jobID, audit.AuditError)
		} else {
			all = append(all, results...)
		}
		o.recorder.DocumentProcessed(outcome, time.Since(docStart))

		if _, err := o.store.UpdateJob(storeCtx, jobID, func(j *audit.Job) error {
			if derr != nil {
				j.FailedTasks++
			} else {
				j.CompletedTasks++
			}
			j.Progress = max(j.Progress, progress(j.CompletedTasks+j.FailedTasks, j.TotalTasks))
			return nil
		}); err != nil {
			return fmt.Errorf("record progress: %w", err)
		}
	}
	if ctx.Err() != nil {
		return o.finishFailed(ctx, jobID, started, audit.ErrJobCancelled)
	}

	final, err := o.store.UpdateJob(storeCtx, jobID, func(j *audit.Job) error {
		end := o.now().UTC()
		j.Status = audit.JobCompleted
		j.EndTime = &end
		j.Progress = 100
		j.Summary = audit.Summarize(all)
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	tracing.SetJobOutcome(span, final)
	o.recorder.JobFinished(audit.JobCompleted, final.EndTime.Sub(started))
	o.logger.InfoContext(ctx, "job completed",
		"completed", final.CompletedTasks,
		"failed", final.FailedTasks,
		"results", len(all),
		"pass_rate", final.Summary.PassRate,
	)

	o.exportReport(ctx, final, all)
	return nil
}

func progress(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}

// finishFailed marks the job FAILED with cause and returns cause.
func (o *Orchestrator) finishFailed(ctx context.Context, jobID string, started time.Time, cause error) error {
	o.fail(ctx, jobID, cause)
	o.recorder.JobFinished(audit.JobFailed, o.now().UTC().Sub(started))
	return cause
}

// fail moves a non-terminal job to FAILED.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error) {
	_, err := o.store.UpdateJob(context.WithoutCancel(ctx), jobID, func(j *audit.Job) error {
		end := o.now().UTC()
		j.Status = audit.JobFailed
		j.EndTime = &end
		j.ErrorMessage = cause.Error()
		return nil
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to mark job failed", "job_id", jobID, "cause", cause, "error", err)
		return
	}
	o.security.AuditLog(ctx, audit.ActionJobRun, "job failed: "+cause.Error(), jobID, audit.AuditError)
	o.logger.ErrorContext(ctx, "job failed", "job_id", jobID, "error", cause)
}

// processDocument runs every active rule over one document and persists the
// results. Any failure, including a panic, is returned as *audit.DocumentError.
//
// Job cancellation does not reach the document: it runs to completion and the
// caller stops before the next one. Only the document timeout interrupts it,
// and a document that times out fails rather than keeping partial matches.
func (o *Orchestrator) processDocument(ctx context.Context, jobID string, rs *audit.RuleSet, rules []audit.Rule, docID string) (results []audit.AuditResult, err error) {
	ctx = logging.WithDocumentID(ctx, docID)
	ctx, span := o.tracer.Start(ctx, "audit.document", trace.WithAttributes(attribute.String(tracing.AttrDocumentID, docID)))
	defer span.End()

	stage := "permission"
	defer func() {
		if p := recover(); p != nil {
			o.logger.ErrorContext(ctx, "document processing panicked", "stage", stage, "panic", p)
			results, err = nil, &audit.DocumentError{DocumentID: docID, Stage: stage, Cause: fmt.Errorf("panic: %v", p)}
		}
		tracing.SetError(span, err)
	}()

	ctx = context.WithoutCancel(ctx)
	if o.config.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.DocumentTimeout)
		defer cancel()
	}

	if !o.security.HasPermission(ctx, audit.ActionDocumentAudit) {
		return nil, &audit.DocumentError{DocumentID: docID, Stage: stage, Cause: audit.ErrPermissionDenied}
	}
	o.security.AuditLog(ctx, audit.ActionDocumentAudit, "auditing document "+docID, jobID, audit.AuditInfo)

	stage = "fetch"
	content, err := o.docs.GetDocumentContent(ctx, docID)
	if err != nil {
		return nil, &audit.DocumentError{DocumentID: docID, Stage: stage, Cause: err}
	}
	if content == nil {
		return nil, &audit.DocumentError{DocumentID: docID, Stage: stage, Cause: errors.New("provider returned no content")}
	}

	stage = "chunk"
	chunks := content.Chunks
	if len(chunks) == 0 {
		chunks = o.chunker.Chunk(docID, content.Text)
	}
	span.SetAttributes(attribute.Int(tracing.AttrChunkCount, len(chunks)))

	stage = "match"
	results = make([]audit.AuditResult, 0, len(rules))
	for i := range rules {
		rule := &rules[i]
		matches := o.engine.Match(ctx, rule, chunks)
		results = append(results, o.assembler.Assemble(jobID, docID, rule, rs.Version, matches))
	}
	if err := ctx.Err(); err != nil {
		return nil, &audit.DocumentError{DocumentID: docID, Stage: stage, Cause: fmt.Errorf("document timed out after %s: %w", o.config.DocumentTimeout, err)}
	}

	stage = "persist"
	if err := o.store.SaveResults(context.WithoutCancel(ctx), results...); err != nil {
		return nil, &audit.DocumentError{DocumentID: docID, Stage: stage, Cause: err}
	}

	o.logger.DebugContext(ctx, "document audited", "chunks", len(chunks), "results", len(results))
	return results, nil
}

// exportReport renders the finished job. Failures are logged only.
func (o *Orchestrator) exportReport(ctx context.Context, job *audit.Job, results []audit.AuditResult) {
	format := job.ReportFormat
	if format == "" {
		format = o.config.ReportFormat
	}
	if format == "" {
		return
	}
	if !o.security.HasPermission(ctx, audit.ActionReportExport) {
		o.logger.WarnContext(ctx, "report export not permitted", "format", format)
		return
	}
	ctx, span := o.tracer.Start(ctx, "audit.report", trace.WithAttributes(attribute.String(tracing.AttrReportFormat, format)))
	defer span.End()

	artifact, err := o.reports.Export(ctx, format, job, results)
	if err != nil {
		tracing.SetError(span, err)
		o.logger.WarnContext(ctx, "report export failed", "format", format, "error", err)
		return
	}
	if artifact != nil {
		o.security.AuditLog(ctx, audit.ActionReportExport, "report exported to "+artifact.Location, job.ID, audit.AuditInfo)
	}
}

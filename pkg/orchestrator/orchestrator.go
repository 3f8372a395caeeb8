// Package orchestrator drives audit jobs through their lifecycle.
//
// # Lifecycle
//
// A job is created CREATED, moves to RUNNING when execution starts, and ends
// COMPLETED or FAILED. Terminal jobs are never modified again.
//
// # Execution
//
// Documents are processed one at a time in request order: permission check,
// fetch, chunk, match every active rule, assemble, persist. A failure or
// panic inside one document is counted in FailedTasks and the loop moves on;
// only errors outside the loop (unknown rule set, cancellation, losing the
// job record) fail the job. Asynchronous jobs run on the execution gate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/auditor/pkg/assembler"
	"mercator-hq/auditor/pkg/audit"
	"mercator-hq/auditor/pkg/chunker"
	"mercator-hq/auditor/pkg/gate"
	"mercator-hq/auditor/pkg/match"
	"mercator-hq/auditor/pkg/store"
)

// Config controls job execution.
type Config struct {
	// MaxDocuments caps the documents of one job.
	// Default: 1000
	MaxDocuments int `yaml:"max_documents"`

	// DocumentTimeout bounds the processing of one document. Zero disables
	// the limit.
	DocumentTimeout time.Duration `yaml:"document_timeout"`

	// ReportFormat is exported for jobs that do not request a format. Empty
	// exports nothing unless the job asks for it.
	ReportFormat string `yaml:"report_format"`
}

// Recorder receives job measurements.
type Recorder interface {
	JobCreated()
	JobFinished(status audit.JobStatus, duration time.Duration)
	DocumentProcessed(outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) JobCreated()                                {}
func (nopRecorder) JobFinished(audit.JobStatus, time.Duration) {}
func (nopRecorder) DocumentProcessed(string, time.Duration)    {}

// Deps are the collaborators of an Orchestrator. Store, Rules and Documents
// are required; the rest have working defaults.
type Deps struct {
	Store     store.Store
	Rules     audit.RuleProvider
	Documents audit.DocumentProvider

	Engine    *match.Engine
	Chunker   *chunker.Chunker
	Assembler *assembler.Assembler

	// Gate runs asynchronous jobs. Without a gate, async requests are
	// rejected.
	Gate *gate.Gate

	Security audit.SecurityService
	Reports  audit.ReportExporter
	Recorder Recorder
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Orchestrator owns the job state machine.
type Orchestrator struct {
	config    Config
	store     store.Store
	rules     audit.RuleProvider
	docs      audit.DocumentProvider
	engine    *match.Engine
	chunker   *chunker.Chunker
	assembler *assembler.Assembler
	gate      *gate.Gate
	security  audit.SecurityService
	reports   audit.ReportExporter
	recorder  Recorder
	tracer    trace.Tracer
	logger    *slog.Logger

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates an Orchestrator.
func New(config Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil || deps.Rules == nil || deps.Documents == nil {
		return nil, errors.New("orchestrator requires a store, a rule provider and a document provider")
	}
	if config.MaxDocuments <= 0 {
		config.MaxDocuments = 1000
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		config:    config,
		store:     deps.Store,
		rules:     deps.Rules,
		docs:      deps.Documents,
		engine:    deps.Engine,
		chunker:   deps.Chunker,
		assembler: deps.Assembler,
		gate:      deps.Gate,
		security:  deps.Security,
		reports:   deps.Reports,
		recorder:  deps.Recorder,
		tracer:    deps.Tracer,
		logger:    logger.With("component", "orchestrator"),
		now:       time.Now,
		newID:     uuid.NewString,
		cancels:   make(map[string]context.CancelFunc),
	}
	if o.engine == nil {
		o.engine = match.NewEngine(logger)
	}
	if o.chunker == nil {
		o.chunker = chunker.New(nil, logger)
	}
	if o.assembler == nil {
		o.assembler = assembler.New(logger)
	}
	if o.security == nil {
		o.security = audit.NoopSecurity{}
	}
	if o.reports == nil {
		o.reports = audit.NoopReportExporter{}
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("auditor")
	}
	return o, nil
}

// CreateJob validates req, stores a CREATED job and runs it. Synchronous
// jobs have finished when CreateJob returns; asynchronous jobs are handed to
// the gate. When the gate refuses the job (circuit open) the job is marked
// FAILED and the returned error wraps audit.ErrCircuitOpen.
func (o *Orchestrator) CreateJob(ctx context.Context, req audit.JobRequest) (*audit.Job, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}
	if err := o.authorize(ctx, audit.ActionJobRun, ""); err != nil {
		return nil, err
	}

	job := &audit.Job{
		ID:           o.newID(),
		Name:         req.Name,
		RuleSetID:    req.RuleSetID,
		DocumentIDs:  append([]string(nil), req.DocumentIDs...),
		ReportFormat: req.ReportFormat,
		Status:       audit.JobCreated,
		TotalTasks:   len(req.DocumentIDs),
		CreatedAt:    o.now().UTC(),
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	o.recorder.JobCreated()
	o.security.AuditLog(ctx, audit.ActionJobRun, fmt.Sprintf("job created with %d documents", job.TotalTasks), job.ID, audit.AuditInfo)
	o.logger.Info("job created",
		"job_id", job.ID,
		"rule_set_id", job.RuleSetID,
		"documents", job.TotalTasks,
		"async", req.Async,
	)

	// The job outlives the request that created it, but keeps its values
	// (principal, trace) for permission checks and spans.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.track(job.ID, cancel)

	if !req.Async {
		if ctx.Done() != nil {
			stop := context.AfterFunc(ctx, cancel)
			defer stop()
		}
		_ = o.run(runCtx, job.ID)
		return o.store.GetJob(context.WithoutCancel(ctx), job.ID)
	}

	if o.gate == nil {
		o.untrack(job.ID)
		err := errors.New("no execution gate configured for asynchronous jobs")
		o.fail(runCtx, job.ID, err)
		return nil, err
	}
	_, err := gate.Submit(o.gate, runCtx, job.ID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.run(ctx, job.ID)
	})
	if err != nil {
		o.untrack(job.ID)
		o.fail(runCtx, job.ID, err)
		failed, _ := o.store.GetJob(context.WithoutCancel(ctx), job.ID)
		return failed, fmt.Errorf("submit job %s: %w", job.ID, err)
	}
	return job.Clone(), nil
}

func (o *Orchestrator) validate(req audit.JobRequest) error {
	if req.RuleSetID == "" {
		return fmt.Errorf("%w: rule_set_id is required", audit.ErrInvalidRequest)
	}
	if len(req.DocumentIDs) == 0 {
		return fmt.Errorf("%w: at least one document is required", audit.ErrInvalidRequest)
	}
	if len(req.DocumentIDs) > o.config.MaxDocuments {
		return fmt.Errorf("%w: %d documents exceeds the limit of %d", audit.ErrInvalidRequest, len(req.DocumentIDs), o.config.MaxDocuments)
	}
	for i, id := range req.DocumentIDs {
		if id == "" {
			return fmt.Errorf("%w: document_ids[%d] is empty", audit.ErrInvalidRequest, i)
		}
	}
	return nil
}

// GetJobStatus returns a snapshot of the job.
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) (*audit.Job, error) {
	if err := o.authorize(ctx, audit.ActionJobRead, jobID); err != nil {
		return nil, err
	}
	return o.store.GetJob(ctx, jobID)
}

// GetJobResults returns the job's results in the order they were produced.
func (o *Orchestrator) GetJobResults(ctx context.Context, jobID string) ([]audit.AuditResult, error) {
	if err := o.authorize(ctx, audit.ActionJobRead, jobID); err != nil {
		return nil, err
	}
	if _, err := o.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return o.store.ListResults(ctx, jobID)
}

// ListJobs returns jobs newest first.
func (o *Orchestrator) ListJobs(ctx context.Context, q store.JobQuery) ([]*audit.Job, error) {
	if err := o.authorize(ctx, audit.ActionJobRead, ""); err != nil {
		return nil, err
	}
	return o.store.ListJobs(ctx, q)
}

// authorize checks action for the caller in ctx and records a denial.
func (o *Orchestrator) authorize(ctx context.Context, action, jobID string) error {
	if o.security.HasPermission(ctx, action) {
		return nil
	}
	o.security.AuditLog(ctx, action, action+" denied", jobID, audit.AuditWarning)
	return fmt.Errorf("%w: %s", audit.ErrPermissionDenied, action)
}

// CancelJob asks a queued or running job to stop. The document in flight
// finishes first; the job then ends FAILED with audit.ErrJobCancelled.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) error {
	if err := o.authorize(ctx, audit.ActionJobCancel, jobID); err != nil {
		return err
	}
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is already %s", store.ErrTerminal, jobID, job.Status)
	}
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: job %s is not running in this process", audit.ErrInvalidRequest, jobID)
	}
	cancel()
	o.security.AuditLog(ctx, audit.ActionJobCancel, "job cancellation requested", jobID, audit.AuditWarning)
	o.logger.Info("job cancellation requested", "job_id", jobID)
	return nil
}

func (o *Orchestrator) track(jobID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[jobID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(jobID string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[jobID]; ok {
		cancel()
		delete(o.cancels, jobID)
	}
	o.mu.Unlock()
}

// run executes the job and releases its cancel func.
func (o *Orchestrator) run(ctx context.Context, jobID string) error {
	defer o.untrack(jobID)
	return o.execute(ctx, jobID)
}

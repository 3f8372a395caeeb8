package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/auditor/pkg/assembler"
	"mercator-hq/auditor/pkg/audit"
	"mercator-hq/auditor/pkg/chunker"
	"mercator-hq/auditor/pkg/config"
	"mercator-hq/auditor/pkg/documents"
	"mercator-hq/auditor/pkg/embedding"
	"mercator-hq/auditor/pkg/gate"
	"mercator-hq/auditor/pkg/match"
	"mercator-hq/auditor/pkg/orchestrator"
	"mercator-hq/auditor/pkg/report"
	"mercator-hq/auditor/pkg/rules"
	"mercator-hq/auditor/pkg/rules/gitsync"
	"mercator-hq/auditor/pkg/security"
	"mercator-hq/auditor/pkg/store"
	"mercator-hq/auditor/pkg/telemetry/logging"
	"mercator-hq/auditor/pkg/telemetry/metrics"
	"mercator-hq/auditor/pkg/telemetry/tracing"
)

// app is the assembled runtime shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracer  *tracing.Tracer
	metrics *metrics.Collector
	gate    *gate.Gate
	store   store.Store
	rules   *rules.FileProvider
	git     *gitsync.Repository
	orch    *orchestrator.Orchestrator
}

type appOptions struct {
	// reports builds the report exporter. Commands that never export leave
	// it off so no report directory or bucket client is created.
	reports bool
}

// newApp wires every component from cfg. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	logger, err := logging.New(cfg.Telemetry.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if cfg.Telemetry.Tracing.ServiceVersion == "" {
		cfg.Telemetry.Tracing.ServiceVersion = Version
	}
	a.tracer, err = tracing.New(cfg.Telemetry.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewCollector(cfg.Telemetry.Metrics, registry)

	a.gate = gate.New(cfg.Gate, gate.WithRecorder(a.metrics), gate.WithLogger(logger))

	a.store, err = store.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	if cfg.Rules.Git.Enabled() {
		a.git, err = gitsync.New(cfg.Rules.Git, logger)
		if err != nil {
			return nil, err
		}
		if _, err := a.git.Sync(ctx); err != nil {
			return nil, fmt.Errorf("rules: %w", err)
		}
		cfg.Rules.Dir = a.git.RulesDir()
	}

	a.rules = rules.NewFileProvider(rules.FileProviderConfig{
		Dir:              cfg.Rules.Dir,
		DefaultRuleSetID: cfg.Rules.DefaultRuleSetID,
	}, logger)

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	engineOpts := []match.Option{match.WithObserver(a.metrics)}
	if embedder != nil {
		engineOpts = append(engineOpts, match.WithMatcher(match.NewSemanticMatcher(embedder, a.gate, logger)))
	}

	var reports audit.ReportExporter
	if opts.reports {
		reports, err = newExporter(cfg.Report, logger)
		if err != nil {
			return nil, fmt.Errorf("reports: %w", err)
		}
	}

	a.orch, err = orchestrator.New(cfg.Jobs, orchestrator.Deps{
		Store:     a.store,
		Rules:     a.rules,
		Documents: documents.NewFSProvider(cfg.Documents, logger),
		Engine:    match.NewEngine(logger, engineOpts...),
		Chunker:   chunker.New(&cfg.Matching.Chunker, logger),
		Assembler: assembler.New(logger),
		Gate:      a.gate,
		Security:  security.New(cfg.Security.Config, logger),
		Reports:   reports,
		Recorder:  a.metrics,
		Tracer:    a.tracer.Tracer(),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newExporter(cfg config.ReportConfig, logger *slog.Logger) (*report.Exporter, error) {
	var sink report.Sink
	switch cfg.Sink {
	case "minio":
		s, err := report.NewMinIOSink(cfg.MinIO, logger)
		if err != nil {
			return nil, err
		}
		sink = s
	default:
		s, err := report.NewFileSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
		sink = s
	}
	return report.NewExporter(sink, logger,
		report.WithRenderer(report.NewJSONRenderer(cfg.PrettyJSON)),
	), nil
}

// close drains the gate and releases storage and the tracer. It is safe on
// a partially built app.
func (a *app) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var errs []error
	if a.gate != nil {
		if err := a.gate.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}

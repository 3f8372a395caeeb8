// Package metrics exports audit measurements to Prometheus.
//
// A Collector implements the recorder hooks of the execution gate, the match
// engine and the job orchestrator, so wiring is a matter of passing the same
// Collector to each:
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	g := gate.New(cfg.Gate, gate.WithRecorder(collector))
//	engine := match.NewEngine(logger, match.WithObserver(collector))
//	deps.Recorder = collector
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Metrics
//
//   - auditor_gate_tasks_total{outcome}
//   - auditor_gate_task_duration_seconds{outcome}
//   - auditor_gate_rejections_total{reason}
//   - auditor_gate_caller_runs_total
//   - auditor_gate_breaker_state{state}
//   - auditor_gate_external_calls_total{service,outcome}
//   - auditor_gate_external_duration_seconds{service}
//   - auditor_jobs_created_total
//   - auditor_jobs_finished_total{status}
//   - auditor_jobs_running
//   - auditor_job_duration_seconds{status}
//   - auditor_documents_total{outcome}
//   - auditor_document_duration_seconds
//   - auditor_match_evaluations_total{rule_type}
//   - auditor_match_results_total{rule_type}
//   - auditor_match_duration_seconds{rule_type}
//
// A disabled Collector records nothing.
package metrics

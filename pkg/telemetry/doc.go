// Package telemetry groups the observability packages of the auditor.
//
//   - logging: slog construction, context identifiers (job, document, rule,
//     correlation id) and redaction of personal data in log records
//   - metrics: Prometheus collectors for the execution gate, jobs and
//     matching, served from a private registry
//   - tracing: OpenTelemetry spans per job, document and pipeline stage,
//     exported over OTLP gRPC or discarded by a noop tracer
//   - health: liveness and readiness checks for the HTTP API
//
// # Redaction
//
// Document text reaches log records through evidence snippets and error
// messages. With telemetry.logging.redact_pii (on by default) string
// attributes are scrubbed before encoding:
//
//   - bearer tokens and API keys
//   - passwords in key=value form
//   - e-mail addresses
//   - resident ID card, bank card and mobile phone numbers
//
// Additional patterns can be configured under redact_patterns.
package telemetry

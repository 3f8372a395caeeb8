// Package tracing sets up OpenTelemetry tracing for audit jobs.
//
// Spans follow the job pipeline:
//
//	audit.job
//	├── audit.document (one per document, in order)
//	└── audit.report
//
// When tracing is disabled the tracer is a noop and spans cost next to
// nothing. Enabled tracers export over OTLP/gRPC and install the W3C trace
// context propagator, so outbound embedding requests carry a traceparent
// header.
//
// # Usage
//
//	tracer, err := tracing.New(cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//	deps.Tracer = tracer.Tracer()
package tracing

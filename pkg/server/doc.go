// Package server exposes the audit orchestrator over HTTP.
//
// Routes:
//
//	POST   /v1/jobs               create a job (202 when async)
//	GET    /v1/jobs               list jobs (?status=&limit=&offset=)
//	GET    /v1/jobs/{id}          job status
//	GET    /v1/jobs/{id}/results  job results
//	DELETE /v1/jobs/{id}          cancel a running job
//	GET    /health /ready /version
//	GET    <metrics path>         Prometheus metrics, when enabled
//
// /v1 routes require an API key when a validator is configured. Errors are
// returned as {"error": {"code": "...", "message": "..."}}.
package server

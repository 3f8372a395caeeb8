// Package health exposes liveness, readiness and version endpoints.
//
// Liveness only reports that the process is serving requests. Readiness runs
// every registered check concurrently, each bounded by the checker timeout,
// and answers 503 when any check fails.
package health

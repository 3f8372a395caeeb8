// Package audit defines the data model shared by every stage of the document
// compliance audit: jobs, rules and their typed parameters, document chunks,
// evidence, per-chunk match results and the aggregated audit results.
//
// It also declares the collaborator contracts the audit core consumes
// (RuleProvider, DocumentProvider, EmbeddingService, ReportExporter and
// SecurityService) and the error taxonomy used across packages.
//
// # Lifecycle
//
// A Job is created on submission and mutated only by the orchestrator. Its
// progress never decreases and COMPLETED/FAILED are terminal. Rule sets are
// snapshotted once per job. Chunks and MatchResults are transient and live
// only for one document's pass through the pipeline; AuditResults are stored.
//
// # Offsets
//
// All positions are UTF-8 byte offsets. A chunk's StartPos/EndPos index into
// the source document text; an evidence span indexes into the text of the
// chunk that produced it.
package audit

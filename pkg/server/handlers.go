package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/auditor/pkg/audit"
	"mercator-hq/auditor/pkg/limits"
	"mercator-hq/auditor/pkg/security"
	"mercator-hq/auditor/pkg/store"
)

type jobHandlers struct {
	jobs    Jobs
	limiter *limits.Limiter
	maxBody int64
	logger  *slog.Logger
}

// createJobRequest is the body of POST /v1/jobs.
type createJobRequest struct {
	Name         string   `json:"name"`
	RuleSetID    string   `json:"rule_set_id"`
	DocumentIDs  []string `json:"document_ids"`
	Async        bool     `json:"async"`
	ReportFormat string   `json:"report_format,omitempty"`
}

type listJobsResponse struct {
	Jobs   []*audit.Job `json:"jobs"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type resultsResponse struct {
	JobID   string              `json:"job_id"`
	Count   int                 `json:"count"`
	Results []audit.AuditResult `json:"results"`
}

func (h *jobHandlers) create(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		key := limitKey(r)
		d := h.limiter.Allow(key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if err := d.Err(key); err != nil {
			h.logger.WarnContext(r.Context(), "job submission rate limited", "key", key, "retry_after", d.RetryAfter)
			h.fail(w, r, err)
			return
		}
	}

	var body createJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.fail(w, r, fmt.Errorf("%w: malformed request body: %v", audit.ErrInvalidRequest, err))
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), audit.JobRequest{
		Name:         body.Name,
		RuleSetID:    body.RuleSetID,
		DocumentIDs:  body.DocumentIDs,
		Async:        body.Async,
		ReportFormat: body.ReportFormat,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	status := http.StatusOK
	if body.Async {
		status = http.StatusAccepted
	}
	writeJSON(w, status, job)
}

func (h *jobHandlers) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), 50)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := audit.JobStatus(q.Get("status"))
	switch status {
	case "", audit.JobCreated, audit.JobRunning, audit.JobCompleted, audit.JobFailed:
	default:
		h.fail(w, r, fmt.Errorf("%w: unknown status %q", audit.ErrInvalidRequest, status))
		return
	}

	jobs, err := h.jobs.ListJobs(r.Context(), store.JobQuery{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*audit.Job{}
	}
	writeJSON(w, http.StatusOK, listJobsResponse{Jobs: jobs, Limit: limit, Offset: offset})
}

func (h *jobHandlers) get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJobStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *jobHandlers) results(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	results, err := h.jobs.GetJobResults(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if results == nil {
		results = []audit.AuditResult{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{JobID: id, Count: len(results), Results: results})
}

func (h *jobHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.jobs.CancelJob(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "cancelling"})
}

// limitKey is the authenticated principal, or the client host when the API
// is open.
func limitKey(r *http.Request) string {
	if p, ok := security.PrincipalFrom(r.Context()); ok && p.ID != "" {
		return "principal:" + p.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func queryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", audit.ErrInvalidRequest, s)
	}
	return n, nil
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf maps a domain error to an HTTP status and error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, audit.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, audit.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, audit.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, limits.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, store.ErrTerminal):
		return http.StatusConflict, "job_terminal"
	case errors.Is(err, audit.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "circuit_open"
	case errors.Is(err, audit.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// fail writes err as a JSON error. Server-side failures are logged with
// their cause and reported to the client without it.
func (h *jobHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := statusOf(err)
	if code >= 500 {
		h.logger.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
	}
	var open *audit.CircuitOpenError
	var limited *limits.RateLimitError
	switch {
	case errors.As(err, &open):
		setRetryAfter(w, open.RetryAfter)
	case errors.As(err, &limited):
		setRetryAfter(w, limited.RetryAfter)
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "an internal error occurred"
	}
	writeJSONError(w, code, kind, msg)
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	if d > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
	}
}

func writeJSONError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorBody{Error: errorDetail{Code: kind, Message: msg}})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

package audit

import (
	"time"
)

// JobStatus is the lifecycle state of an audit job.
type JobStatus string

const (
	JobCreated   JobStatus = "CREATED"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Status is the verdict of a match or an aggregated audit result.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusWarning Status = "WARNING"
	StatusFailed  Status = "FAILED"
	StatusError   Status = "ERROR"
	StatusNoMatch Status = "NO_MATCH"
)

// Severity orders statuses for aggregation: ERROR > FAILED > WARNING > PASSED > NO_MATCH.
func (s Status) Severity() int {
	switch s {
	case StatusError:
		return 4
	case StatusFailed:
		return 3
	case StatusWarning:
		return 2
	case StatusPassed:
		return 1
	default:
		return 0
	}
}

// ChunkType classifies a document chunk.
type ChunkType string

const (
	ChunkHeading     ChunkType = "heading"
	ChunkParagraph   ChunkType = "paragraph"
	ChunkSentence    ChunkType = "sentence"
	ChunkTableHeader ChunkType = "table_header"
	ChunkTableRow    ChunkType = "table_row"
)

// Match types recorded on evidence. The assembler keys its guidance on them.
const (
	MatchTypeKeyword     = "keyword"
	MatchTypePhrase      = "phrase"
	MatchTypeRegex       = "regex"
	MatchTypeExclusion   = "exclusion"
	MatchTypeCombination = "combination"
	MatchTypeFormat      = "format"
	MatchTypeSemantic    = "semantic"
)

// Job is an audit run over a list of documents against one rule set.
type Job struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	RuleSetID      string      `json:"rule_set_id"`
	RuleSetVersion string      `json:"rule_set_version,omitempty"`
	DocumentIDs    []string    `json:"document_ids"`
	ReportFormat   string      `json:"report_format,omitempty"`
	Status         JobStatus   `json:"status"`
	Progress       int         `json:"progress"`
	TotalTasks     int         `json:"total_tasks"`
	CompletedTasks int         `json:"completed_tasks"`
	FailedTasks    int         `json:"failed_tasks"`
	CreatedAt      time.Time   `json:"created_at"`
	StartTime      *time.Time  `json:"start_time,omitempty"`
	EndTime        *time.Time  `json:"end_time,omitempty"`
	Summary        *JobSummary `json:"summary,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
}

// Clone returns a deep copy safe to hand out to readers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.DocumentIDs = append([]string(nil), j.DocumentIDs...)
	if j.StartTime != nil {
		t := *j.StartTime
		c.StartTime = &t
	}
	if j.EndTime != nil {
		t := *j.EndTime
		c.EndTime = &t
	}
	if j.Summary != nil {
		s := *j.Summary
		c.Summary = &s
	}
	return &c
}

// JobSummary aggregates the AuditResults of a finished job.
type JobSummary struct {
	TotalRules   int     `json:"total_rules"`
	PassedRules  int     `json:"passed_rules"`
	FailedRules  int     `json:"failed_rules"`
	WarningRules int     `json:"warning_rules"`
	PassRate     float64 `json:"pass_rate"` // percent, 0-100
}

// JobRequest is the input to job creation.
type JobRequest struct {
	Name         string   `json:"name"`
	RuleSetID    string   `json:"rule_set_id"`
	DocumentIDs  []string `json:"document_ids"`
	Async        bool     `json:"async"`
	ReportFormat string   `json:"report_format,omitempty"`
}

// RuleType selects the matching strategy of a rule.
type RuleType string

const (
	RuleKeyword     RuleType = "KEYWORD"
	RulePhrase      RuleType = "PHRASE"
	RuleRegex       RuleType = "REGEX"
	RuleExclusion   RuleType = "EXCLUSION"
	RuleCombination RuleType = "COMBINATION"
	RuleFormat      RuleType = "FORMAT"
	RuleSemantic    RuleType = "SEMANTIC"
)

// Rule is one compliance check. Params holds the typed configuration parsed
// from Parameters at load time; ParamError is set when parsing failed.
type Rule struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Type        RuleType       `json:"type" yaml:"type"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Threshold   float64        `json:"threshold" yaml:"threshold"`
	Active      bool           `json:"active" yaml:"active"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	Params     RuleParams `json:"-" yaml:"-"`
	ParamError error      `json:"-" yaml:"-"`
}

// RuleSet is a versioned collection of rules.
type RuleSet struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version" yaml:"version"`
	Rules   []Rule `json:"rules" yaml:"rules"`
}

// Snapshot returns an immutable copy of the rule set for one job.
func (rs *RuleSet) Snapshot() *RuleSet {
	if rs == nil {
		return nil
	}
	c := &RuleSet{ID: rs.ID, Version: rs.Version, Rules: make([]Rule, len(rs.Rules))}
	for i, r := range rs.Rules {
		r.Parameters = cloneMap(r.Parameters)
		c.Rules[i] = r
	}
	return c
}

// ActiveRules returns the rules flagged active, in declaration order.
func (rs *RuleSet) ActiveRules() []Rule {
	var active []Rule
	for _, r := range rs.Rules {
		if r.Active {
			active = append(active, r)
		}
	}
	return active
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			c[k] = cloneMap(vv)
		case []any:
			c[k] = append([]any(nil), vv...)
		case []string:
			c[k] = append([]string(nil), vv...)
		default:
			c[k] = v
		}
	}
	return c
}

// DocumentChunk is a minimal addressable unit of document text.
type DocumentChunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id,omitempty"`
	Index      int            `json:"index"`
	Text       string         `json:"text"`
	Type       ChunkType      `json:"type"`
	StartPos   int            `json:"start_pos"`
	EndPos     int            `json:"end_pos"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// DocumentContent is what a DocumentProvider returns. Chunks may be empty, in
// which case the orchestrator runs its own chunker over Text.
type DocumentContent struct {
	ID       string            `json:"id"`
	Title    string            `json:"title,omitempty"`
	Text     string            `json:"text"`
	Chunks   []DocumentChunk   `json:"chunks,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Evidence is a located text span supporting a match decision.
type Evidence struct {
	Text      string         `json:"text"`
	StartPos  int            `json:"start_pos"`
	EndPos    int            `json:"end_pos"`
	MatchType string         `json:"match_type"`
	Context   map[string]any `json:"context,omitempty"`
}

// MatchResult is the outcome of one rule against one chunk.
type MatchResult struct {
	RuleID    string         `json:"rule_id"`
	ChunkID   string         `json:"chunk_id"`
	Text      string         `json:"text"`
	Score     float64        `json:"score"`
	Threshold float64        `json:"threshold"`
	Status    Status         `json:"status"`
	Evidences []Evidence     `json:"evidences"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditResult is the verdict for one rule over one document of a job.
type AuditResult struct {
	ResultID       string     `json:"result_id"`
	JobID          string     `json:"job_id"`
	RuleID         string     `json:"rule_id"`
	RuleName       string     `json:"rule_name,omitempty"`
	RuleVersion    string     `json:"rule_version,omitempty"`
	DocumentID     string     `json:"document_id"`
	Status         Status     `json:"status"`
	Score          float64    `json:"score"`
	Threshold      float64    `json:"threshold"`
	Evidences      []Evidence `json:"evidences"`
	Recommendation string     `json:"recommendation"`
	AuditTime      time.Time  `json:"audit_time"`
}

// Summarize computes the job summary over a set of results.
func Summarize(results []AuditResult) *JobSummary {
	s := &JobSummary{TotalRules: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			s.PassedRules++
		case StatusFailed, StatusError:
			s.FailedRules++
		case StatusWarning:
			s.WarningRules++
		}
	}
	if s.TotalRules > 0 {
		rate := float64(s.PassedRules) * 100 / float64(s.TotalRules)
		s.PassRate = float64(int(rate*100+0.5)) / 100
	}
	return s
}

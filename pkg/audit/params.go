package audit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RuleParams is the typed configuration of a rule. Exactly one implementation
// exists per RuleType.
type RuleParams interface {
	Kind() RuleType
}

// Mode tells a presence-based matcher whether a hit is desired or a violation.
type Mode string

const (
	// ModeRequired treats a hit as evidence that required content is present.
	ModeRequired Mode = "required"
	// ModeForbidden treats a hit as a violation.
	ModeForbidden Mode = "forbidden"
)

// KeywordParams configures a KEYWORD rule.
type KeywordParams struct {
	Keywords []string
	Mode     Mode
}

func (KeywordParams) Kind() RuleType { return RuleKeyword }

// PhraseParams configures a PHRASE rule.
type PhraseParams struct {
	Phrases []string
	Mode    Mode
}

func (PhraseParams) Kind() RuleType { return RulePhrase }

// RegexParams configures a REGEX rule. The pattern is always matched
// case-insensitively.
type RegexParams struct {
	Pattern string
	Mode    Mode

	re *regexp.Regexp
}

func (RegexParams) Kind() RuleType { return RuleRegex }

// Regexp returns the compiled pattern, compiling it on first use when the
// params were built by hand rather than parsed.
func (p RegexParams) Regexp() (*regexp.Regexp, error) {
	if p.re != nil {
		return p.re, nil
	}
	return compileInsensitive(p.Pattern)
}

// ExclusionParams configures an EXCLUSION rule.
type ExclusionParams struct {
	Keywords []string
}

func (ExclusionParams) Kind() RuleType { return RuleExclusion }

// CombinationOperator joins the two keyword groups of a COMBINATION rule.
type CombinationOperator string

const (
	OperatorAnd      CombinationOperator = "AND"
	OperatorOr       CombinationOperator = "OR"
	OperatorNear     CombinationOperator = "NEAR"
	OperatorSequence CombinationOperator = "SEQUENCE"
)

// CombinationParams configures a COMBINATION rule.
type CombinationParams struct {
	GroupA      []string
	GroupB      []string
	Operator    CombinationOperator
	MaxDistance int
	Mode        Mode
}

func (CombinationParams) Kind() RuleType { return RuleCombination }

// FormatCheck names one validator of the format checker.
type FormatCheck string

const (
	CheckEmail             FormatCheck = "email"
	CheckPhone             FormatCheck = "phone"
	CheckIDCard            FormatCheck = "id_card"
	CheckCurrency          FormatCheck = "currency"
	CheckDate              FormatCheck = "date"
	CheckRequiredElements  FormatCheck = "required_elements"
	CheckForbiddenElements FormatCheck = "forbidden_elements"
	CheckLength            FormatCheck = "length"
	CheckControlChars      FormatCheck = "control_chars"
)

// AllFormatChecks is used when a FORMAT rule does not list its checks.
var AllFormatChecks = []FormatCheck{
	CheckEmail, CheckPhone, CheckIDCard, CheckCurrency, CheckDate,
	CheckRequiredElements, CheckForbiddenElements, CheckLength, CheckControlChars,
}

// DefaultDateFormats are the accepted date patterns when none are configured.
var DefaultDateFormats = []string{
	`^\d{4}-\d{2}-\d{2}$`,
	`^\d{4}年\d{1,2}月\d{1,2}日$`,
}

// FormatParams configures a FORMAT rule.
type FormatParams struct {
	Checks             []FormatCheck
	AllowedDateFormats []*regexp.Regexp
	RequiredElements   []string
	ForbiddenElements  []string
	MinLength          int
	MaxLength          int
	MaxViolations      int
}

func (FormatParams) Kind() RuleType { return RuleFormat }

// Enabled reports whether check c is configured.
func (p FormatParams) Enabled(c FormatCheck) bool {
	for _, x := range p.Checks {
		if x == c {
			return true
		}
	}
	return false
}

// SemanticParams configures a SEMANTIC rule. Model, when set, replaces the
// embedding service's configured model for this rule.
type SemanticParams struct {
	Queries   []string
	BatchSize int
	Model     string
}

// DefaultSemanticThreshold is the threshold a rule loader assigns to a
// SEMANTIC rule that does not set one.
const DefaultSemanticThreshold = 0.75

func (SemanticParams) Kind() RuleType { return RuleSemantic }

// DefaultSemanticBatchSize bounds embedding request size when unset.
const DefaultSemanticBatchSize = 16

// Compile parses Parameters into Params. A parse failure is recorded in
// ParamError rather than returned so that a single bad rule never blocks a
// rule set from loading.
func (r *Rule) Compile() {
	params, err := ParseRuleParams(r.Type, r.Parameters)
	r.Params = params
	r.ParamError = err
}

// ParseRuleParams validates a raw parameter map for the given rule type.
func ParseRuleParams(t RuleType, raw map[string]any) (RuleParams, error) {
	switch t {
	case RuleKeyword:
		kw, err := requiredStrings(raw, "keywords")
		if err != nil {
			return nil, err
		}
		mode, err := parseMode(raw)
		if err != nil {
			return nil, err
		}
		return KeywordParams{Keywords: kw, Mode: mode}, nil

	case RulePhrase:
		phrases, err := optionalStrings(raw, "phrases")
		if err != nil {
			return nil, err
		}
		if len(phrases) == 0 {
			// phrases may be given under the keyword key as well
			if phrases, err = requiredStrings(raw, "keywords"); err != nil {
				return nil, err
			}
		}
		mode, err := parseMode(raw)
		if err != nil {
			return nil, err
		}
		return PhraseParams{Phrases: phrases, Mode: mode}, nil

	case RuleRegex:
		pattern, _ := raw["pattern"].(string)
		if pattern == "" {
			return nil, &ParamError{Field: "pattern", Message: "is required"}
		}
		re, err := compileInsensitive(pattern)
		if err != nil {
			return nil, &ParamError{Field: "pattern", Message: err.Error()}
		}
		mode, err := parseMode(raw)
		if err != nil {
			return nil, err
		}
		return RegexParams{Pattern: pattern, Mode: mode, re: re}, nil

	case RuleExclusion:
		kw, err := requiredStrings(raw, "keywords")
		if err != nil {
			return nil, err
		}
		return ExclusionParams{Keywords: kw}, nil

	case RuleCombination:
		return parseCombination(raw)

	case RuleFormat:
		return parseFormat(raw)

	case RuleSemantic:
		queries, err := requiredStrings(raw, "queries")
		if err != nil {
			return nil, err
		}
		batch, err := optionalInt(raw, "batch_size", DefaultSemanticBatchSize)
		if err != nil {
			return nil, err
		}
		if batch <= 0 {
			return nil, &ParamError{Field: "batch_size", Message: "must be positive"}
		}
		model, _ := raw["model"].(string)
		return SemanticParams{Queries: queries, BatchSize: batch, Model: model}, nil

	default:
		return nil, &ParamError{Field: "type", Message: fmt.Sprintf("unknown rule type %q", t)}
	}
}

func parseCombination(raw map[string]any) (RuleParams, error) {
	a, err := requiredStrings(raw, "group_a")
	if err != nil {
		return nil, err
	}
	b, err := requiredStrings(raw, "group_b")
	if err != nil {
		return nil, err
	}
	opStr, _ := raw["operator"].(string)
	op := CombinationOperator(strings.ToUpper(strings.TrimSpace(opStr)))
	if op == "" {
		op = OperatorAnd
	}
	switch op {
	case OperatorAnd, OperatorOr, OperatorNear, OperatorSequence:
	default:
		return nil, &ParamError{Field: "operator", Message: fmt.Sprintf("unsupported operator %q", opStr)}
	}
	dist, err := optionalInt(raw, "max_distance", 50)
	if err != nil {
		return nil, err
	}
	if dist < 0 {
		return nil, &ParamError{Field: "max_distance", Message: "must not be negative"}
	}
	mode, err := parseMode(raw)
	if err != nil {
		return nil, err
	}
	return CombinationParams{GroupA: a, GroupB: b, Operator: op, MaxDistance: dist, Mode: mode}, nil
}

func parseFormat(raw map[string]any) (RuleParams, error) {
	p := FormatParams{}

	checks, err := optionalStrings(raw, "checks")
	if err != nil {
		return nil, err
	}
	if len(checks) == 0 {
		p.Checks = append([]FormatCheck(nil), AllFormatChecks...)
	}
	for _, c := range checks {
		fc := FormatCheck(strings.ToLower(c))
		if !knownCheck(fc) {
			return nil, &ParamError{Field: "checks", Message: fmt.Sprintf("unknown check %q", c)}
		}
		p.Checks = append(p.Checks, fc)
	}

	formats, err := optionalStrings(raw, "allowed_date_formats")
	if err != nil {
		return nil, err
	}
	if len(formats) == 0 {
		formats = DefaultDateFormats
	}
	for _, f := range formats {
		re, err := regexp.Compile(f)
		if err != nil {
			return nil, &ParamError{Field: "allowed_date_formats", Message: err.Error()}
		}
		p.AllowedDateFormats = append(p.AllowedDateFormats, re)
	}

	if p.RequiredElements, err = optionalStrings(raw, "required_elements"); err != nil {
		return nil, err
	}
	if p.ForbiddenElements, err = optionalStrings(raw, "forbidden_elements"); err != nil {
		return nil, err
	}
	if p.MinLength, err = optionalInt(raw, "min_length", 0); err != nil {
		return nil, err
	}
	if p.MaxLength, err = optionalInt(raw, "max_length", 0); err != nil {
		return nil, err
	}
	if p.MaxLength > 0 && p.MinLength > p.MaxLength {
		return nil, &ParamError{Field: "min_length", Message: "exceeds max_length"}
	}
	if p.MaxViolations, err = optionalInt(raw, "max_violations", 0); err != nil {
		return nil, err
	}
	if p.MaxViolations < 0 {
		return nil, &ParamError{Field: "max_violations", Message: "must not be negative"}
	}
	return p, nil
}

func knownCheck(c FormatCheck) bool {
	for _, x := range AllFormatChecks {
		if x == c {
			return true
		}
	}
	return false
}

func parseMode(raw map[string]any) (Mode, error) {
	s, _ := raw["mode"].(string)
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRequired:
		return ModeRequired, nil
	case ModeForbidden:
		return ModeForbidden, nil
	default:
		return "", &ParamError{Field: "mode", Message: fmt.Sprintf("unsupported mode %q", s)}
	}
}

func compileInsensitive(pattern string) (*regexp.Regexp, error) {
	if strings.HasPrefix(pattern, "(?i)") {
		return regexp.Compile(pattern)
	}
	return regexp.Compile("(?i)" + pattern)
}

func requiredStrings(raw map[string]any, key string) ([]string, error) {
	vals, err := optionalStrings(raw, key)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, &ParamError{Field: key, Message: "must contain at least one entry"}
	}
	return vals, nil
}

// optionalStrings accepts a list or a comma separated string. Blank entries
// are dropped.
func optionalStrings(raw map[string]any, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch vv := v.(type) {
	case string:
		for _, part := range strings.Split(vv, ",") {
			add(part)
		}
	case []string:
		for _, s := range vv {
			add(s)
		}
	case []any:
		for i, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, &ParamError{Field: fmt.Sprintf("%s[%d]", key, i), Message: "must be a string"}
			}
			add(s)
		}
	default:
		return nil, &ParamError{Field: key, Message: fmt.Sprintf("must be a list of strings, got %T", v)}
	}
	return out, nil
}

func optionalInt(raw map[string]any, key string, def int) (int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, &ParamError{Field: key, Message: "must be an integer"}
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, &ParamError{Field: key, Message: "must be an integer"}
		}
		return i, nil
	default:
		return 0, &ParamError{Field: key, Message: fmt.Sprintf("must be an integer, got %T", v)}
	}
}

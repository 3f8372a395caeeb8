package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"mercator-hq/auditor/pkg/audit"
)

// Extensions lists the file types recognised as rule set files.
var Extensions = []string{".yaml", ".yml", ".json"}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("ruleset.json", strings.NewReader(ruleSetSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("ruleset.json")
	})
	return schema, schemaErr
}

// LoadError reports a rule set file that could not be used.
type LoadError struct {
	Path  string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("rule set %s: %v", e.Path, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// fileRule mirrors audit.Rule for decoding; Active defaults to true.
type fileRule struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Type        string         `json:"type"`
	Threshold   *float64       `json:"threshold"`
	Active      *bool          `json:"active"`
	Parameters  map[string]any `json:"parameters"`
}

type fileRuleSet struct {
	ID      string     `json:"id"`
	Version string     `json:"version"`
	Rules   []fileRule `json:"rules"`
}

// LoadFile reads, schema-validates and compiles one rule set file. Rules with
// invalid parameters are kept with ParamError set; use Validate to list them.
func LoadFile(path string) (*audit.RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	rs, err := Parse(raw, filepath.Ext(path))
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	return rs, nil
}

// Parse decodes a rule set document. ext selects the format: ".json" for
// JSON, anything else for YAML.
func Parse(raw []byte, ext string) (*audit.RuleSet, error) {
	var doc any
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	// Round-trip through JSON so YAML scalars and maps take the shapes the
	// schema validator and the parameter parser expect.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	var generic any
	if err := json.Unmarshal(normalized, &generic); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(generic); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var fs fileRuleSet
	if err := json.Unmarshal(normalized, &fs); err != nil {
		return nil, fmt.Errorf("decode rule set: %w", err)
	}

	rs := &audit.RuleSet{ID: fs.ID, Version: fs.Version, Rules: make([]audit.Rule, 0, len(fs.Rules))}
	seen := make(map[string]bool, len(fs.Rules))
	for _, fr := range fs.Rules {
		if seen[fr.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", fr.ID)
		}
		seen[fr.ID] = true

		active := true
		if fr.Active != nil {
			active = *fr.Active
		}
		var threshold float64
		switch {
		case fr.Threshold != nil:
			threshold = *fr.Threshold
		case audit.RuleType(fr.Type) == audit.RuleSemantic:
			threshold = audit.DefaultSemanticThreshold
		}
		r := audit.Rule{
			ID:          fr.ID,
			Name:        fr.Name,
			Type:        audit.RuleType(fr.Type),
			Description: fr.Description,
			Threshold:   threshold,
			Active:      active,
			Parameters:  fr.Parameters,
		}
		if r.Parameters == nil {
			r.Parameters = map[string]any{}
		}
		r.Compile()
		rs.Rules = append(rs.Rules, r)
	}
	return rs, nil
}

// Validate returns one error per rule whose parameters failed to compile.
func Validate(rs *audit.RuleSet) []error {
	var errs []error
	for _, r := range rs.Rules {
		if r.ParamError != nil {
			errs = append(errs, fmt.Errorf("rule %s (%s): %w", r.ID, r.Type, r.ParamError))
		}
	}
	return errs
}

// ValidateFile loads path and joins every problem found into one error.
func ValidateFile(path string) (*audit.RuleSet, error) {
	rs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return rs, errors.Join(Validate(rs)...)
}

func isRuleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return !strings.HasPrefix(filepath.Base(path), ".")
		}
	}
	return false
}

package rules

// ruleSetSchema is the JSON Schema every rule set file must satisfy. Typed
// parameter checks happen afterwards in audit.ParseRuleParams.
const ruleSetSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "version", "rules"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "description": {"type": "string"},
          "type": {"enum": ["KEYWORD", "PHRASE", "REGEX", "EXCLUSION", "COMBINATION", "FORMAT", "SEMANTIC"]},
          "threshold": {"type": "number", "minimum": 0, "maximum": 1},
          "active": {"type": "boolean"},
          "parameters": {"type": "object"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

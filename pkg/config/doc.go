// Package config loads the auditor configuration.
//
// Configuration comes from one YAML file. Values are applied in this order,
// later overriding earlier:
//
//  1. Defaults (ApplyDefaults)
//  2. The YAML file
//  3. Environment variables named AUDITOR_<SECTION>_<FIELD>, for example
//     AUDITOR_STORAGE_DRIVER or AUDITOR_TELEMETRY_LOGGING_LEVEL
//  4. ${secret:name} references in credential fields, resolved through
//     pkg/security/secrets
//
// Validate collects every problem into a ValidationError so a broken file
// is reported in one pass.
//
// Each section is the Config type of the package that consumes it, so
// components never import this package. There is no global instance: the
// loaded *Config is passed explicitly from cmd/auditor.
package config

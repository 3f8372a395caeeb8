package cli

import (
	"errors"
	"fmt"

	"mercator-hq/auditor/pkg/audit"
)

// Exit codes returned by the auditor binary.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitConfig       = 2
	ExitDenied       = 3
	ExitJobFailed    = 4
	ExitAuditFailure = 5
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
	// Code overrides the exit code derived from Err.
	Code int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce *CommandError
	if errors.As(err, &ce) && ce.Code != 0 {
		return ce.Code
	}
	var cfg *ConfigError
	switch {
	case errors.As(err, &cfg):
		return ExitConfig
	case errors.Is(err, audit.ErrPermissionDenied):
		return ExitDenied
	default:
		return ExitFailure
	}
}

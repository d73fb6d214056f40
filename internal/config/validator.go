package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/mergepipe/internal/vcs"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "merge.command_timeout_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// maxCommandTimeoutSeconds caps merge.command_timeout_seconds at one hour.
const maxCommandTimeoutSeconds = 3600

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateGit()...)
	errors = append(errors, c.validateMerge()...)

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

func (c *Config) validateGit() []ValidationError {
	if strings.TrimSpace(c.Git.Binary) == "" {
		return []ValidationError{{
			Field:   "git.binary",
			Value:   c.Git.Binary,
			Message: "must not be empty",
		}}
	}
	return nil
}

func (c *Config) validateMerge() []ValidationError {
	var errors []ValidationError

	if _, ok := vcs.LookupStrategy(c.Merge.DefaultStrategy); !ok {
		errors = append(errors, ValidationError{
			Field:   "merge.default_strategy",
			Value:   c.Merge.DefaultStrategy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(vcs.StrategyNames(), ", ")),
		})
	}

	if c.Merge.CommandTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "merge.command_timeout_seconds",
			Value:   c.Merge.CommandTimeoutSeconds,
			Message: "must be positive",
		})
	}
	if c.Merge.CommandTimeoutSeconds > maxCommandTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "merge.command_timeout_seconds",
			Value:   c.Merge.CommandTimeoutSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d", maxCommandTimeoutSeconds),
		})
	}

	return errors
}

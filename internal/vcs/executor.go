package vcs

import (
	"os"
	"os/exec"
	"strings"

	"github.com/Iron-Ham/mergepipe/internal/errors"
)

// -----------------------------------------------------------------------------
// Command Executor
// -----------------------------------------------------------------------------

// CommandExecutor abstracts command execution for testability.
// This allows tests to mock git commands without executing them.
type CommandExecutor interface {
	// Run executes a command and returns its standard output. env entries
	// are appended to the current process environment. On failure the
	// returned error carries standard error, see StderrOf.
	Run(dir string, env []string, name string, args ...string) ([]byte, error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command and returns standard output.
func (e *CLICommandExecutor) Run(dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd.Output()
}

// ExitCode extracts the process exit code from err, or -1 when err did not
// come from a process that exited.
func ExitCode(err error) int {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

// StderrOf returns the captured standard error of a failed command.
func StderrOf(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return strings.TrimSpace(string(exitErr.Stderr))
	}
	var stderrErr interface{ Stderr() string }
	if errors.As(err, &stderrErr) {
		return strings.TrimSpace(stderrErr.Stderr())
	}
	return ""
}

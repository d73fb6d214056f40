package pipeline

import "github.com/Iron-Ham/mergepipe/internal/logging"

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger the executor and its steps log through.
func WithLogger(logger *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

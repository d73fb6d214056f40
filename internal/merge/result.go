package merge

import "fmt"

// Status is the outcome of a merge step.
type Status int

const (
	StatusSuccess Status = iota
	StatusConflict
	StatusError
)

// String returns the upper-case status name used in logs.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusConflict:
		return "CONFLICT"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Result is what an operation or pipeline reports for one file.
type Result struct {
	Status  Status
	Message string
	// OutputPath is the file holding the result, "" when there is none.
	OutputPath string
	Err        error
	// Commit is the commit whose tree holds the result. Only tree-level
	// merges inside a multi-branch run set it.
	Commit string
}

// Success reports a resolved file.
func Success(message, outputPath string) Result {
	return Result{Status: StatusSuccess, Message: message, OutputPath: outputPath}
}

// Conflict reports unresolved conflicts. outputPath may hold a
// conflict-marked file.
func Conflict(message, outputPath string) Result {
	return Result{Status: StatusConflict, Message: message, OutputPath: outputPath}
}

// Failure reports an error.
func Failure(message string, err error) Result {
	return Result{Status: StatusError, Message: message, Err: err}
}

// Succeeded reports whether the status is SUCCESS.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// String renders the result for logs and CLI output.
func (r Result) String() string {
	s := fmt.Sprintf("%s: %s", r.Status, r.Message)
	if r.Err != nil {
		s = fmt.Sprintf("%s (%v)", s, r.Err)
	}
	return s
}

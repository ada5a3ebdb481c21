package cli

import "errors"

// Process exit code conventions. Usage and configuration problems exit with
// ExitUsage before any scan or tool invocation; run-level outcomes carry
// their own codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitUsage         = 2
	ExitIAM           = 3
	ExitIAMAndFailure = 4
)

// codedError carries the process exit code for a run-level outcome.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

// withExitCode tags a run-level error with its process exit code.
func withExitCode(code int, err error) error {
	return &codedError{code: code, err: err}
}

// ExitCode maps the error Execute returned to a process exit code. Errors
// without an explicit code are usage or configuration failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return ExitUsage
}

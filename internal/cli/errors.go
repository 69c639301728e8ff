package cli

import (
	"errors"
	"fmt"
)

// Exit codes returned by Execute.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitConflict = 2
	// ExitRolledBack is used when an operation ended rolled back or failed.
	ExitRolledBack = 3
)

// ExitStatus carries a specific process exit code out of a command.
//
// Commands return it instead of calling os.Exit so tests can assert on the
// code. Execute turns it into the process status.
type ExitStatus struct {
	Code int
	Err  error
}

func (e *ExitStatus) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitStatus) Unwrap() error { return e.Err }

// exitWith wraps err with the given exit code.
func exitWith(code int, err error) *ExitStatus {
	return &ExitStatus{Code: code, Err: err}
}

// exitCode extracts the exit code for err. A nil error is ExitOK and any
// error that is not an *ExitStatus is ExitError.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var status *ExitStatus
	if errors.As(err, &status) {
		return status.Code
	}
	return ExitError
}

package cmd

import (
	"errors"
	"fmt"
)

// exitCodeError carries the specific process exit code a subcommand wants,
// distinguishing "missing targets file" (2) from any other internal error
// (1) per §6.3.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

func exitError(code int) error {
	return &exitCodeError{code: code}
}

// ExitCode maps an error returned by Execute() to the process exit code
// main() should use: 0 for nil, the code carried by an exitCodeError, or 1
// for any other error (cobra usage errors, unexpected failures).
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return ExitInternalError
}

package core

import (
	"context"
	"errors"
)

// ShutdownFunc is a cleanup handler run during graceful shutdown. The
// context carries the remaining shutdown deadline.
type ShutdownFunc func(ctx context.Context) error

// Process exit codes. Signal exits follow the 128+signal convention.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeConfig  = 2
	ExitCodeSIGINT  = 130
	ExitCodeSIGTERM = 143
)

// ExitCodeFor maps the error returned by a command to a process exit code.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, context.Canceled):
		return ExitCodeSIGINT
	default:
		if _, ok := IsConfigError(err); ok {
			return ExitCodeConfig
		}
		return ExitCodeError
	}
}

// ExitCodeName returns a readable name for an exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeConfig:
		return "configuration error"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}

package cli

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/jaa/tbprep/internal/config"
	"github.com/jaa/tbprep/internal/engine"
	"github.com/jaa/tbprep/internal/exitcode"
	"github.com/jaa/tbprep/internal/workflow"
)

type ExitError struct {
	Code int
	Err  error
	// Reported is set when the error already reached the user as an event.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// stepError wraps an error returned by a workflow step. The workflow has already emitted
// it, so Execute does not print it again.
func stepError(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: classifyError(err), Err: err, Reported: true}
}

func classifyError(err error) int {
	var notReady *workflow.NotReadyError
	var busy *workflow.BusyError
	var invalid *config.ValidationError
	switch {
	case errors.As(err, &notReady):
		return exitcode.NotReady
	case errors.As(err, &busy):
		return exitcode.Busy
	case errors.Is(err, engine.ErrCancelled), errors.Is(err, context.Canceled):
		return exitcode.Interrupted
	case errors.Is(err, engine.ErrTimedOut):
		return exitcode.TimedOut
	case errors.As(err, &invalid):
		return exitcode.InvalidConfig
	case errors.Is(err, exec.ErrNotFound):
		return exitcode.MissingDependency
	}
	return exitcode.RuntimeFailure
}

func mapExitCode(err error) int {
	if err == nil {
		return exitcode.Success
	}
	var coded *ExitError
	if errors.As(err, &coded) {
		return coded.Code
	}
	message := err.Error()
	if strings.Contains(message, "unknown command") || strings.Contains(message, "unknown flag") {
		return exitcode.InvalidUsage
	}
	return exitcode.RuntimeFailure
}

func alreadyReported(err error) bool {
	var coded *ExitError
	return errors.As(err, &coded) && coded.Reported
}

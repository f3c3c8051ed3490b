package workflow

import (
	"fmt"
	"strings"
)

// NotReadyError refuses a step whose preconditions are not met yet.
type NotReadyError struct {
	Step   string
	Reason string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s is not available: %s", e.Step, e.Reason)
}

func notReady(step, format string, args ...any) error {
	return &NotReadyError{Step: step, Reason: fmt.Sprintf(format, args...)}
}

// BusyError reports that another step holds the workspace lock.
type BusyError struct {
	LockPath string
	Holder   string
}

func (e *BusyError) Error() string {
	holder := strings.TrimSpace(e.Holder)
	if holder == "" {
		holder = "another run"
	}
	return fmt.Sprintf("workspace is busy (%s); remove %s if no step is running", holder, e.LockPath)
}

package engine

import (
	"fmt"
	"strings"
	"time"
)

type ExecSpec struct {
	Bin            string
	Args           []string
	Dir            string
	Env            []string
	Timeout        time.Duration
	DisplayCommand string
	// OnLine receives every non-empty output line, stdout and stderr interleaved.
	OnLine func(line string)
	// Cancel stops the process group once closed; nil never fires.
	Cancel <-chan struct{}
}

type ExecResult struct {
	ExitCode    int
	Duration    time.Duration
	Interrupted bool
	Cancelled   bool
	TimedOut    bool
	StdoutTail  string
	StderrTail  string
	Err         error
}

// Failure summarises a non-zero run for error messages, preferring the last stderr line.
func (r ExecResult) Failure(tool string) string {
	tail := lastLine(r.StderrTail)
	if tail == "" {
		tail = lastLine(r.StdoutTail)
	}
	if tail == "" {
		return fmt.Sprintf("%s exited with code %d", tool, r.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", tool, r.ExitCode, tail)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

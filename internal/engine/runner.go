package engine

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var (
	ErrCancelled = errors.New("cancelled")
	ErrTimedOut  = errors.New("timed out")
)

// cancelGrace is how long a cancelled tool may take to exit before it is killed.
const cancelGrace = 2 * time.Second

type ExecRunner interface {
	Run(ctx context.Context, spec ExecSpec) ExecResult
}

// SubprocessRunner runs external tools in their own process group. Stdout and Stderr,
// when set, receive a raw copy of the tool output (typically a log file).
type SubprocessRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

type tailBuffer struct {
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 64 * 1024
	}
	return &tailBuffer{
		buf: make([]byte, 0, max),
		max: max,
	}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return len(p), nil
	}
	overflow := len(t.buf) + len(p) - t.max
	if overflow > 0 {
		t.buf = append(t.buf[:0], t.buf[overflow:]...)
	}
	t.buf = append(t.buf, p...)
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

// lineSplitter hands complete lines to fn. Stdout and stderr share one splitter per
// stream but a common lock, so fn is never called concurrently.
type lineSplitter struct {
	mu      *sync.Mutex
	pending []byte
	fn      func(line string)
}

func (l *lineSplitter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, p...)
	for {
		idx := indexLineBreak(l.pending)
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(l.pending[:idx]))
		l.pending = l.pending[idx+1:]
		if line != "" {
			l.fn(line)
		}
	}
	return len(p), nil
}

func (l *lineSplitter) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if line := strings.TrimSpace(string(l.pending)); line != "" {
		l.fn(line)
	}
	l.pending = nil
}

func indexLineBreak(p []byte) int {
	for i, b := range p {
		if b == '\n' || b == '\r' {
			return i
		}
	}
	return -1
}

type flushWriter interface {
	Flush() error
}

func NewSubprocessRunner(stdout, stderr io.Writer) *SubprocessRunner {
	return &SubprocessRunner{Stdout: stdout, Stderr: stderr}
}

func (r *SubprocessRunner) Run(ctx context.Context, spec ExecSpec) ExecResult {
	start := time.Now()
	if spec.Bin == "" {
		return ExecResult{ExitCode: 1, Duration: time.Since(start), Err: errors.New("missing binary")}
	}

	cmd := exec.Command(spec.Bin, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}
	configureCommandForTermination(cmd)

	stdoutTail := newTailBuffer(64 * 1024)
	stderrTail := newTailBuffer(64 * 1024)
	stdoutWriters := []io.Writer{stdoutTail}
	stderrWriters := []io.Writer{stderrTail}
	if r.Stdout != nil {
		stdoutWriters = append(stdoutWriters, r.Stdout)
	}
	if r.Stderr != nil {
		stderrWriters = append(stderrWriters, r.Stderr)
	}

	var splitters []*lineSplitter
	if spec.OnLine != nil {
		mu := &sync.Mutex{}
		outLines := &lineSplitter{mu: mu, fn: spec.OnLine}
		errLines := &lineSplitter{mu: mu, fn: spec.OnLine}
		splitters = append(splitters, outLines, errLines)
		stdoutWriters = append(stdoutWriters, outLines)
		stderrWriters = append(stderrWriters, errLines)
	}
	cmd.Stdout = io.MultiWriter(stdoutWriters...)
	cmd.Stderr = io.MultiWriter(stderrWriters...)

	if err := cmd.Start(); err != nil {
		result := ExecResult{Duration: time.Since(start), Err: err, ExitCode: 1}
		if errors.Is(err, exec.ErrNotFound) {
			result.ExitCode = 127
		}
		return result
	}

	var timeout <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	var (
		err         error
		interrupted bool
		cancelled   bool
		timedOut    bool
	)
	select {
	case err = <-waitDone:
	case <-ctx.Done():
		interrupted = true
		terminateCommand(cmd)
		err = <-waitDone
	case <-spec.Cancel:
		cancelled = true
		err = stopCommand(cmd, waitDone, cancelGrace)
	case <-timeout:
		timedOut = true
		terminateCommand(cmd)
		err = <-waitDone
	}

	for _, s := range splitters {
		s.flush()
	}
	flushWriterIfSupported(r.Stdout)
	flushWriterIfSupported(r.Stderr)

	result := ExecResult{
		Duration:    time.Since(start),
		StdoutTail:  stdoutTail.String(),
		StderrTail:  stderrTail.String(),
		Err:         err,
		Interrupted: interrupted,
		Cancelled:   cancelled,
		TimedOut:    timedOut,
	}
	switch {
	case interrupted:
		result.ExitCode = 130
		result.Err = context.Cause(ctx)
		return result
	case cancelled:
		result.ExitCode = 130
		result.Err = ErrCancelled
		return result
	case timedOut:
		result.ExitCode = 124
		result.Err = ErrTimedOut
		return result
	}
	if err == nil {
		result.ExitCode = 0
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result
	}
	result.ExitCode = 1
	return result
}

func flushWriterIfSupported(w io.Writer) {
	if f, ok := w.(flushWriter); ok {
		_ = f.Flush()
	}
}

// stopCommand asks the process group to exit so the tool can close its files, and kills
// it once grace has passed.
func stopCommand(cmd *exec.Cmd, waitDone <-chan error, grace time.Duration) error {
	interruptCommand(cmd)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-waitDone:
		return err
	case <-timer.C:
		terminateCommand(cmd)
		return <-waitDone
	}
}

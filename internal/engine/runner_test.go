package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestSubprocessRunnerStreamsLines(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	var stdout bytes.Buffer
	runner := NewSubprocessRunner(&stdout, nil)
	script := writeScript(t, "elastix", "echo 'Reading images'\n"+
		"printf 'Time spent in resolution 0: 1s\\r\\n'\n"+
		"echo 'warning on stderr' 1>&2\n"+
		"printf 'no trailing newline'\n")

	var (
		mu    sync.Mutex
		lines []string
	)
	result := runner.Run(context.Background(), ExecSpec{
		Bin: script,
		OnLine: func(line string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, line)
		},
	})

	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%q)", result.ExitCode, result.StderrTail)
	}
	got := strings.Join(lines, "|")
	for _, want := range []string{"Reading images", "Time spent in resolution 0: 1s", "warning on stderr", "no trailing newline"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected line %q in %q", want, got)
		}
	}
	if !strings.Contains(stdout.String(), "Reading images") {
		t.Fatalf("expected raw stdout copy, got %q", stdout.String())
	}
}

func TestSubprocessRunnerReportsExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	runner := NewSubprocessRunner(nil, nil)
	script := writeScript(t, "elastix", "echo 'itk::ExceptionObject: fixed image not found' 1>&2\nexit 3\n")

	result := runner.Run(context.Background(), ExecSpec{Bin: script})
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
	if got := result.Failure("elastix"); got != "elastix exited with code 3: itk::ExceptionObject: fixed image not found" {
		t.Fatalf("unexpected failure summary %q", got)
	}
}

func TestSubprocessRunnerMissingBinary(t *testing.T) {
	runner := NewSubprocessRunner(nil, nil)
	result := runner.Run(context.Background(), ExecSpec{Bin: filepath.Join(t.TempDir(), "does-not-exist")})
	if result.Err == nil || result.ExitCode == 0 {
		t.Fatalf("expected start failure, got %+v", result)
	}

	result = runner.Run(context.Background(), ExecSpec{})
	if result.Err == nil {
		t.Fatalf("expected missing binary error")
	}
}

func TestSubprocessRunnerStopsOnCancelChannel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	runner := NewSubprocessRunner(nil, nil)
	script := writeScript(t, "elastix", "echo 'Register volumes...'\nsleep 5\necho 'never'\n")
	cancel := make(chan struct{})

	start := time.Now()
	result := runner.Run(context.Background(), ExecSpec{
		Bin:    script,
		Cancel: cancel,
		OnLine: func(line string) {
			if strings.HasPrefix(line, "Register volumes") {
				close(cancel)
			}
		},
	})

	if !result.Cancelled || !errors.Is(result.Err, ErrCancelled) {
		t.Fatalf("expected cancelled result, got %+v", result)
	}
	if result.Interrupted {
		t.Fatalf("cancel channel must not be reported as an interrupt")
	}
	if time.Since(start) >= 4*time.Second {
		t.Fatalf("expected process group to be terminated early")
	}
}

func TestSubprocessRunnerLetsCancelledToolExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	runner := NewSubprocessRunner(nil, nil)
	script := writeScript(t, "elastix", "trap 'echo cleaned up; exit 0' TERM\necho 'Reading images'\nsleep 5 &\nwait\n")
	cancel := make(chan struct{})

	var (
		mu    sync.Mutex
		lines []string
	)
	result := runner.Run(context.Background(), ExecSpec{
		Bin:    script,
		Cancel: cancel,
		OnLine: func(line string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, line)
			if line == "Reading images" {
				close(cancel)
			}
		},
	})

	if !result.Cancelled {
		t.Fatalf("expected cancelled result, got %+v", result)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(lines, "|") != "Reading images|cleaned up" {
		t.Fatalf("expected the tool to handle SIGTERM, got %q", lines)
	}
}

func TestSubprocessRunnerTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	runner := NewSubprocessRunner(nil, nil)
	script := writeScript(t, "transformix", "sleep 5\n")

	result := runner.Run(context.Background(), ExecSpec{Bin: script, Timeout: 100 * time.Millisecond})
	if !result.TimedOut || !errors.Is(result.Err, ErrTimedOut) {
		t.Fatalf("expected timeout, got %+v", result)
	}
}

func TestSubprocessRunnerInterruptedByContext(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	runner := NewSubprocessRunner(nil, nil)
	script := writeScript(t, "elastix", "sleep 5\n")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result := runner.Run(ctx, ExecSpec{Bin: script})
	if !result.Interrupted || result.ExitCode != 130 {
		t.Fatalf("expected interrupted result, got %+v", result)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tail := newTailBuffer(4)
	_, _ = tail.Write([]byte("ab"))
	_, _ = tail.Write([]byte("cdef"))
	if tail.String() != "cdef" {
		t.Fatalf("expected tail cdef, got %q", tail.String())
	}
	_, _ = tail.Write([]byte("g"))
	if tail.String() != "defg" {
		t.Fatalf("expected tail defg, got %q", tail.String())
	}
}

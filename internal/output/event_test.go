package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestJSONEmitterSerializesEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	emitter := NewJSONEmitter(buf)

	event := Event{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:     LevelInfo,
		Event:     EventStepStarted,
		Step:      "rigid",
		Message:   "Register volumes...",
		Details: map[string]any{
			"percent": 3,
		},
	}

	if err := emitter.Emit(event); err != nil {
		t.Fatalf("emit: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}

	if decoded["event"] != string(EventStepStarted) {
		t.Fatalf("unexpected event name: %v", decoded["event"])
	}
	if decoded["step"] != "rigid" {
		t.Fatalf("unexpected step: %v", decoded["step"])
	}
	if decoded["message"] != "Register volumes..." {
		t.Fatalf("unexpected message: %v", decoded["message"])
	}
}

func TestHumanEmitterHidesProgressUnlessVerbose(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	emitter := NewHumanEmitter(stdout, stderr, false, false)

	_ = emitter.Emit(Event{Level: LevelInfo, Event: EventStepStarted, Message: "rigid started"})
	_ = emitter.Emit(Event{Level: LevelInfo, Event: EventStepProgress, Message: "Reading images"})
	_ = emitter.Emit(Event{Level: LevelInfo, Event: EventStepFinished, Message: "Registration is completed."})
	_ = emitter.Emit(Event{Level: LevelError, Event: EventStepFailed, Message: "Error: elastix exited with code 1"})

	if stdout.String() != "Registration is completed.\n" {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	if stderr.String() != "Error: elastix exited with code 1\n" {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestHumanEmitterQuietKeepsResults(t *testing.T) {
	stdout := &bytes.Buffer{}
	emitter := NewHumanEmitter(stdout, stdout, true, true)

	_ = emitter.Emit(Event{Level: LevelInfo, Event: EventSessionInfo, Message: "side: Left"})
	_ = emitter.Emit(Event{Level: LevelWarn, Event: EventStepRefused, Message: "busy"})
	_ = emitter.Emit(Event{Level: LevelInfo, Event: EventStepFinished, Step: "save", Message: "saved"})

	if stdout.String() != "[save] saved\n" {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestHumanEmitterQuietStillReportsCancellation(t *testing.T) {
	stderr := &bytes.Buffer{}
	emitter := NewHumanEmitter(&bytes.Buffer{}, stderr, true, false)

	_ = emitter.Emit(Event{Level: LevelWarn, Event: EventStepCancelled, Step: "rigid", Message: "Registration is cancelled."})

	if stderr.String() != "WARN: Registration is cancelled.\n" {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

type failingEmitter struct{}

func (failingEmitter) Emit(Event) error {
	return errors.New("disk full")
}

func TestMultiEmitterDeliversPastFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	multi := NewMultiEmitter(failingEmitter{}, NewJSONEmitter(buf))

	err := multi.Emit(Event{Level: LevelInfo, Event: EventStepFinished, Step: "save", Message: "saved"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !strings.Contains(buf.String(), `"message":"saved"`) {
		t.Fatalf("expected the event after a failing emitter, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"timestamp":"`) || strings.Contains(buf.String(), "0001-01-01") {
		t.Fatalf("expected a stamped timestamp, got %q", buf.String())
	}
}

package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type EventEmitter interface {
	Emit(event Event) error
}

// JSONEmitter writes one event per line. Events without a timestamp are stamped on write.
type JSONEmitter struct {
	enc *json.Encoder
	mu  sync.Mutex
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONEmitter{enc: enc}
}

func (e *JSONEmitter) Emit(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(event)
}

// HumanEmitter prints step results on stdout and warnings and failures on stderr. Step
// starts and progress only show with verbose, where every line also names its step.
type HumanEmitter struct {
	stdout  io.Writer
	stderr  io.Writer
	quiet   bool
	verbose bool
}

func NewHumanEmitter(stdout, stderr io.Writer, quiet, verbose bool) *HumanEmitter {
	return &HumanEmitter{stdout: stdout, stderr: stderr, quiet: quiet, verbose: verbose}
}

func (e *HumanEmitter) Emit(event Event) error {
	line := event.Message
	if line == "" {
		line = string(event.Event)
	}
	if e.verbose && event.Step != "" {
		line = "[" + event.Step + "] " + line
	}

	switch event.Level {
	case LevelError:
		// Step failures already read "Error: ...".
		if strings.HasPrefix(event.Message, "Error: ") {
			_, err := fmt.Fprintln(e.stderr, line)
			return err
		}
		_, err := fmt.Fprintln(e.stderr, "ERROR:", line)
		return err
	case LevelWarn:
		if e.quiet && event.Event != EventStepCancelled {
			return nil
		}
		_, err := fmt.Fprintln(e.stderr, "WARN:", line)
		return err
	default:
		if e.quiet && event.Event != EventStepFinished {
			return nil
		}
		if !e.verbose && (event.Event == EventStepStarted || event.Event == EventStepProgress) {
			return nil
		}
		_, err := fmt.Fprintln(e.stdout, line)
		return err
	}
}

// MultiEmitter fans an event out to every emitter. A failing emitter does not keep the
// event from the others.
type MultiEmitter struct {
	emitters []EventEmitter
}

func NewMultiEmitter(emitters ...EventEmitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (e *MultiEmitter) Emit(event Event) error {
	var errs []error
	for _, emitter := range e.emitters {
		if err := emitter.Emit(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

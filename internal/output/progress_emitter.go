package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jaa/tbprep/internal/output/compact"
)

type ProgressOptions struct {
	Interactive bool
	Width       int
}

// ProgressEmitter renders step_progress events as a single status line that is rewritten
// in place on terminals. Every other event clears the line and goes to next.
type ProgressEmitter struct {
	dst         io.Writer
	next        EventEmitter
	interactive bool
	width       int

	mu          sync.Mutex
	machine     *compact.StateMachine
	activeLine  string
	lastPercent float64
	printed     bool
}

func NewProgressEmitter(dst io.Writer, next EventEmitter) *ProgressEmitter {
	return NewProgressEmitterWithOptions(dst, next, ProgressOptions{
		Interactive: SupportsInPlaceUpdates(dst),
	})
}

func NewProgressEmitterWithOptions(dst io.Writer, next EventEmitter, opts ProgressOptions) *ProgressEmitter {
	if next == nil {
		next = NoOpEmitter{}
	}
	width := opts.Width
	if width <= 0 {
		width = 24
	}
	return &ProgressEmitter{
		dst:         dst,
		next:        next,
		interactive: opts.Interactive,
		width:       width,
		machine:     compact.NewStateMachine(),
	}
}

func SupportsInPlaceUpdates(dst io.Writer) bool {
	file, ok := dst.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func (e *ProgressEmitter) Emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch event.Event {
	case EventStepStarted:
		e.machine.Begin(event.Step)
		e.printed = false
		if err := e.clearActiveLineLocked(); err != nil {
			return err
		}
		if err := e.next.Emit(event); err != nil {
			return err
		}
		return e.renderLocked()
	case EventStepProgress:
		status, percent := progressDetails(event)
		e.machine.Observe(status, percent)
		return e.renderLocked()
	case EventStepFinished:
		return e.finishLocked(compact.StepLifecycleFinished, event)
	case EventStepFailed:
		return e.finishLocked(compact.StepLifecycleFailed, event)
	case EventStepCancelled:
		return e.finishLocked(compact.StepLifecycleCancelled, event)
	}
	if err := e.clearActiveLineLocked(); err != nil {
		return err
	}
	return e.next.Emit(event)
}

func (e *ProgressEmitter) finishLocked(lifecycle compact.StepLifecycle, event Event) error {
	e.machine.Finish(lifecycle)
	hadLine := e.activeLine != ""
	if err := e.clearActiveLineLocked(); err != nil {
		return err
	}
	if hadLine && lifecycle != compact.StepLifecycleFinished {
		if _, err := fmt.Fprintln(e.dst, compact.RenderResultLine(e.machine.Snapshot())); err != nil {
			return err
		}
	}
	return e.next.Emit(event)
}

// Snapshot exposes the state of the current or last step.
func (e *ProgressEmitter) Snapshot() compact.StepProgress {
	return e.machine.Snapshot()
}

func progressDetails(event Event) (string, *int) {
	status, _ := event.Details["status"].(string)
	if status == "" {
		status = event.Message
	}
	matched, _ := event.Details["matched"].(bool)
	if !matched {
		return status, nil
	}
	switch v := event.Details["percent"].(type) {
	case int:
		return status, &v
	case float64:
		p := int(v)
		return status, &p
	}
	return status, nil
}

func (e *ProgressEmitter) renderLocked() error {
	snapshot := e.machine.Snapshot()
	if !snapshot.Active() {
		return nil
	}
	if !e.interactive {
		// Without a terminal only milestone changes are printed.
		if !snapshot.ProgressKnown || (e.printed && snapshot.ProgressPercent == e.lastPercent) {
			return nil
		}
		e.printed = true
		e.lastPercent = snapshot.ProgressPercent
		_, err := fmt.Fprintln(e.dst, compact.RenderStepLine(compact.StepProgress{
			Name:            snapshot.Name,
			ProgressKnown:   true,
			ProgressPercent: snapshot.ProgressPercent,
		}, e.width))
		return err
	}

	line := compact.RenderStepLine(snapshot, e.width)
	if line == e.activeLine {
		return nil
	}
	e.activeLine = line
	_, err := fmt.Fprintf(e.dst, "\r\033[2K%s", line)
	return err
}

func (e *ProgressEmitter) clearActiveLineLocked() error {
	if !e.interactive || e.activeLine == "" {
		return nil
	}
	e.activeLine = ""
	_, err := fmt.Fprint(e.dst, "\r\033[2K")
	return err
}

package output

import "time"

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type EventName string

const (
	EventStepStarted   EventName = "step_started"
	EventStepProgress  EventName = "step_progress"
	EventStepFinished  EventName = "step_finished"
	EventStepFailed    EventName = "step_failed"
	EventStepCancelled EventName = "step_cancelled"
	EventStepRefused   EventName = "step_refused"
	EventSessionInfo   EventName = "session_info"
)

type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Event     EventName      `json:"event"`
	Step      string         `json:"step,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// NoOpEmitter discards every event.
type NoOpEmitter struct{}

func (NoOpEmitter) Emit(Event) error {
	return nil
}

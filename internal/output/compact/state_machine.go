package compact

import "sync"

type StateMachine struct {
	mu    sync.Mutex
	state StepProgress
}

func NewStateMachine() *StateMachine {
	m := &StateMachine{}
	m.Reset()
	return m
}

func (m *StateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StepProgress{Lifecycle: StepLifecycleIdle}
}

// Begin starts a step at a known 0%.
func (m *StateMachine) Begin(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StepProgress{
		Name:          name,
		Lifecycle:     StepLifecycleRunning,
		ProgressKnown: true,
	}
}

// Observe records a status line. A nil percent keeps the previous value.
func (m *StateMachine) Observe(status string, percent *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Lifecycle != StepLifecycleRunning {
		return
	}
	m.state.Status = status
	m.state.Lines++
	if percent != nil {
		m.state.ProgressKnown = true
		m.state.ProgressPercent = ClampPercent(float64(*percent))
	}
}

func (m *StateMachine) Finish(lifecycle StepLifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Lifecycle != StepLifecycleRunning {
		return
	}
	m.state.Lifecycle = lifecycle
	if lifecycle == StepLifecycleFinished {
		m.state.ProgressKnown = true
		m.state.ProgressPercent = 100
	}
}

func (m *StateMachine) Snapshot() StepProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

package compact

type StepLifecycle string

const (
	StepLifecycleIdle      StepLifecycle = "idle"
	StepLifecycleRunning   StepLifecycle = "running"
	StepLifecycleFinished  StepLifecycle = "finished"
	StepLifecycleFailed    StepLifecycle = "failed"
	StepLifecycleCancelled StepLifecycle = "cancelled"
)

// StepProgress is what the status line shows for one running step.
type StepProgress struct {
	Name            string
	Lifecycle       StepLifecycle
	ProgressKnown   bool
	ProgressPercent float64
	Status          string
	Lines           int
}

func (p StepProgress) Active() bool {
	return p.Lifecycle == StepLifecycleRunning
}

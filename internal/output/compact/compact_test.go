package compact

import "testing"

func intPtr(v int) *int { return &v }

func TestStateMachineTracksStep(t *testing.T) {
	m := NewStateMachine()
	if m.Snapshot().Active() {
		t.Fatalf("new machine must be idle")
	}

	m.Begin("rigid")
	m.Observe("Register volumes...", intPtr(3))
	m.Observe("Reading images", nil)
	snapshot := m.Snapshot()
	if snapshot.ProgressPercent != 3 || snapshot.Status != "Reading images" || snapshot.Lines != 2 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	m.Finish(StepLifecycleCancelled)
	m.Observe("late line", intPtr(90))
	snapshot = m.Snapshot()
	if snapshot.Lifecycle != StepLifecycleCancelled || snapshot.ProgressPercent != 3 {
		t.Fatalf("observe after finish must be ignored, got %+v", snapshot)
	}
}

func TestStateMachineFinishedIsComplete(t *testing.T) {
	m := NewStateMachine()
	m.Begin("rigid")
	m.Finish(StepLifecycleFinished)
	if got := m.Snapshot().ProgressPercent; got != 100 {
		t.Fatalf("expected 100%%, got %v", got)
	}
}

func TestRenderStepLine(t *testing.T) {
	line := RenderStepLine(StepProgress{
		Name:            "rigid",
		Lifecycle:       StepLifecycleRunning,
		ProgressKnown:   true,
		ProgressPercent: 50,
		Status:          "Resolution 2",
	}, 10)
	if line != "[rigid] [#####-----]  50.0% Status: Resolution 2" {
		t.Fatalf("unexpected line %q", line)
	}
	if got := RenderProgress(140, 4); got != "[####] 100.0%" {
		t.Fatalf("unexpected clamped bar %q", got)
	}
}

func TestRenderResultLine(t *testing.T) {
	if got := RenderResultLine(StepProgress{Name: "rigid", Lifecycle: StepLifecycleCancelled, ProgressPercent: 40}); got != "[cancelled] rigid at 40%" {
		t.Fatalf("unexpected line %q", got)
	}
	if got := RenderResultLine(StepProgress{Name: "save", Lifecycle: StepLifecycleFinished}); got != "[done] save" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestClassifyLine(t *testing.T) {
	cases := map[string]LineKind{
		"":                                     LineKindNoise,
		"0\t-0.512\t1.23e-02\t0.01":           LineKindNoise,
		"==========":                           LineKindNoise,
		"Reading images...":                    LineKindInfo,
		"WARNING: mask is empty":               LineKindWarning,
		"itk::ExceptionObject (0x1)":           LineKindError,
		"ERROR: fixed image could not be read": LineKindError,
	}
	for line, want := range cases {
		if got := ClassifyLine(line); got != want {
			t.Fatalf("ClassifyLine(%q) = %s, want %s", line, got, want)
		}
	}
}

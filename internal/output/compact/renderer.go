package compact

import (
	"fmt"
	"strings"
)

// RenderStepLine renders "[rigid] [######----------]  40.0% Status: ..." for a running step.
func RenderStepLine(p StepProgress, width int) string {
	line := fmt.Sprintf("[%s]", p.Name)
	if p.ProgressKnown {
		line += " " + RenderProgress(p.ProgressPercent, width)
	}
	if strings.TrimSpace(p.Status) != "" {
		line += " Status: " + p.Status
	}
	return line
}

// RenderResultLine renders the persistent line printed once a step stops.
func RenderResultLine(p StepProgress) string {
	switch p.Lifecycle {
	case StepLifecycleFinished:
		return fmt.Sprintf("[done] %s", p.Name)
	case StepLifecycleCancelled:
		return fmt.Sprintf("[cancelled] %s at %.0f%%", p.Name, ClampPercent(p.ProgressPercent))
	case StepLifecycleFailed:
		return fmt.Sprintf("[failed] %s", p.Name)
	default:
		return fmt.Sprintf("[%s] %s", p.Lifecycle, p.Name)
	}
}

func RenderProgress(percent float64, width int) string {
	clamped := ClampPercent(percent)
	if width <= 0 {
		width = 16
	}
	filled := int((clamped / 100) * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	return fmt.Sprintf("[%s] %5.1f%%", bar, clamped)
}

func ClampPercent(percent float64) float64 {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

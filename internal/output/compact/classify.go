package compact

import (
	"regexp"
	"strings"
)

var (
	iterationRowPattern = regexp.MustCompile(`^-?[0-9]+(?:\.[0-9]+)?(?:e[-+]?[0-9]+)?(?:\s+-?[0-9.eE+-]+)+$`)
	separatorPattern    = regexp.MustCompile(`^[=\-*]{5,}$`)
)

type LineKind string

const (
	LineKindInfo    LineKind = "info"
	LineKindNoise   LineKind = "noise"
	LineKindWarning LineKind = "warning"
	LineKindError   LineKind = "error"
)

// ClassifyLine sorts registration tool output: optimiser iteration tables and separators
// are noise, warnings and errors are kept.
func ClassifyLine(line string) LineKind {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || iterationRowPattern.MatchString(trimmed) || separatorPattern.MatchString(trimmed) {
		return LineKindNoise
	}
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "error"),
		strings.Contains(lower, "exceptionobject"),
		strings.Contains(lower, "description: "):
		return LineKindError
	case strings.HasPrefix(lower, "warning"), strings.HasPrefix(lower, "warn:"):
		return LineKindWarning
	default:
		return LineKindInfo
	}
}

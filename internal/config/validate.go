package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jaa/tbprep/internal/resample"
	"github.com/jaa/tbprep/internal/volume"
)

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid config"
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Problems, "; "))
}

func Validate(cfg Config) error {
	problems := []string{}

	if cfg.Version != 1 {
		problems = append(problems, "version must be 1")
	}

	problems = append(problems, absolutePathProblems("defaults.workspace", cfg.Defaults.Workspace)...)
	problems = append(problems, absolutePathProblems("atlas.dir", cfg.Atlas.Dir)...)

	if cfg.Defaults.Threads <= 0 {
		problems = append(problems, "defaults.threads must be > 0")
	}
	if cfg.Defaults.CommandTimeoutSeconds <= 0 {
		problems = append(problems, "defaults.command_timeout_seconds must be > 0")
	}

	if strings.TrimSpace(cfg.Elastix.Elastix) == "" {
		problems = append(problems, "elastix.elastix must be set")
	}
	switch cfg.Elastix.Output {
	case OutputResample:
		if strings.TrimSpace(cfg.Elastix.Transformix) == "" {
			problems = append(problems, "elastix.transformix must be set when elastix.output is resample")
		}
	case OutputHarden:
	default:
		problems = append(problems, fmt.Sprintf("elastix.output %q is unsupported (expected resample or harden)", cfg.Elastix.Output))
	}
	if strings.TrimSpace(cfg.Elastix.ParameterFile) != "" {
		if _, err := ExpandPath(cfg.Elastix.ParameterFile); err != nil {
			problems = append(problems, "elastix.parameter_file is invalid")
		}
	}

	if _, err := resample.LookupPreset(cfg.Resample.PresetMicrometers); err != nil {
		problems = append(problems, fmt.Sprintf("resample.preset_um: %v", err))
	}
	if _, err := resample.ParseInterpolation(cfg.Resample.Interpolation); err != nil {
		problems = append(problems, fmt.Sprintf("resample.interpolation: %v", err))
	}
	if _, err := volume.LookupSaveType(cfg.Save.Format); err != nil {
		problems = append(problems, fmt.Sprintf("save.format: %v", err))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func absolutePathProblems(key, raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{key + " must be set"}
	}
	expanded, err := ExpandPath(raw)
	if err != nil {
		return []string{key + " must be a valid path"}
	}
	if !filepath.IsAbs(expanded) {
		return []string{key + " must resolve to an absolute path"}
	}
	return nil
}

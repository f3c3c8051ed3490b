package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jaa/tbprep/internal/volume"
)

type SaveOptions struct {
	// Format is nii or nrrd; empty uses the configured default.
	Format string
	// Output is the target path. Empty writes <moving name> into the working directory.
	Output string
}

// Save writes the moving volume, appending the format extension when missing.
func (w *Workflow) Save(ctx context.Context, opts SaveOptions) error {
	return w.execute(ctx, step{
		name:  StepSave,
		ready: requireMoving(StepSave),
		run: func(_ context.Context, s *Session) (string, error) {
			format := opts.Format
			if format == "" {
				format = w.Config.Save.Format
			}
			saveType, err := volume.LookupSaveType(format)
			if err != nil {
				return "", err
			}
			target := strings.TrimSpace(opts.Output)
			if target == "" {
				target = s.Moving.Name
			}
			target, err = filepath.Abs(saveType.WithExtension(target))
			if err != nil {
				return "", fmt.Errorf("resolve output path: %w", err)
			}

			vol, err := loadVolume(s.Moving)
			if err != nil {
				return "", fmt.Errorf("load moving volume: %w", err)
			}
			if err := volume.Write(target, vol); err != nil {
				return "", fmt.Errorf("write %s: %w", target, err)
			}
			return fmt.Sprintf("%s saved as %s to %s", vol.Name, saveType.Title, target), nil
		},
	})
}

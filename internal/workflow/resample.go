package workflow

import (
	"context"
	"fmt"

	"github.com/jaa/tbprep/internal/resample"
	"github.com/jaa/tbprep/internal/volume"
)

type ResampleOptions struct {
	// PresetMicrometers selects an isotropic preset; zero uses the configured default.
	PresetMicrometers int
	// Spacing overrides the preset with "X,Y,Z" or a single value, in micrometers.
	Spacing       string
	Interpolation string
}

// Resample puts the moving volume on a new voxel grid and makes the result the moving
// volume.
func (w *Workflow) Resample(ctx context.Context, opts ResampleOptions) error {
	return w.execute(ctx, step{
		name:  StepResample,
		ready: requireMoving(StepResample),
		run: func(ctx context.Context, s *Session) (string, error) {
			um, err := w.resampleMicrometers(opts)
			if err != nil {
				return "", err
			}
			method := opts.Interpolation
			if method == "" {
				method = w.Config.Resample.Interpolation
			}
			interpolation, err := resample.ParseInterpolation(method)
			if err != nil {
				return "", err
			}

			src, err := loadVolume(s.Moving)
			if err != nil {
				return "", fmt.Errorf("load moving volume: %w", err)
			}
			out, err := resample.Resample(ctx, src, resample.Options{
				Spacing:       resample.SpacingFromMicrometers(um),
				Interpolation: interpolation,
				Threads:       w.threads(),
			})
			if err != nil {
				return "", err
			}
			path := volumePath(w.Workspace, out.Name)
			if err := volume.Write(path, out); err != nil {
				return "", fmt.Errorf("write %s: %w", out.Name, err)
			}
			s.setMoving(VolumeRef{Name: out.Name, Path: path})
			w.Logger.Debugw("resampled", "from", src.Size, "to", out.Size, "interpolation", interpolation)
			return fmt.Sprintf("%s resampled to %v voxels (%s)", out.Name, out.Size, interpolation.Title()), nil
		},
	})
}

func (w *Workflow) resampleMicrometers(opts ResampleOptions) ([3]float64, error) {
	if opts.Spacing != "" {
		return resample.ParseMicrometers(opts.Spacing)
	}
	um := opts.PresetMicrometers
	if um == 0 {
		um = w.Config.Resample.PresetMicrometers
	}
	preset, err := resample.LookupPreset(um)
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{
		float64(preset.Micrometers[0]),
		float64(preset.Micrometers[1]),
		float64(preset.Micrometers[2]),
	}, nil
}

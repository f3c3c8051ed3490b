package workflow

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jaa/tbprep/internal/atlas"
	"github.com/jaa/tbprep/internal/config"
	"github.com/jaa/tbprep/internal/fiducial"
	"github.com/jaa/tbprep/internal/output"
	"github.com/jaa/tbprep/internal/volume"
)

type StartOptions struct {
	Input string
	// Side is L or R; empty detects it from the input name.
	Side           string
	ClearFiducials bool
}

// Start selects the input volume and side, loads the side's atlas and rebuilds the
// fiducial set from the atlas labels. Input placements survive unless the side changes
// or ClearFiducials is set.
func (w *Workflow) Start(ctx context.Context, opts StartOptions) error {
	return w.execute(ctx, step{
		name: StepStart,
		ready: func(*Session) error {
			if opts.Input == "" {
				return notReady(StepStart, "no input volume given")
			}
			return nil
		},
		run: func(ctx context.Context, s *Session) (string, error) {
			input, err := filepath.Abs(opts.Input)
			if err != nil {
				return "", fmt.Errorf("resolve input path: %w", err)
			}
			vol, err := volume.Read(input)
			if err != nil {
				return "", fmt.Errorf("load input volume: %w", err)
			}
			vol.Name = volume.NameFromPath(input)

			side, err := resolveSide(opts.Side, vol.Name)
			if err != nil {
				return "", err
			}

			dir, err := expandAtlasDir(w.Config.Atlas.Dir)
			if err != nil {
				return "", err
			}
			loaded, err := atlas.Load(dir, side)
			if err != nil {
				return "", err
			}
			set, err := fiducial.NewSet(loaded.Fiducials)
			if err != nil {
				return "", fmt.Errorf("atlas fiducials: %w", err)
			}

			kept := 0
			if s.Fiducials != nil && s.Side == side && !opts.ClearFiducials {
				kept, _ = set.Import(s.Fiducials.InputPoints())
			}

			inputRef := VolumeRef{Name: vol.Name, Path: input}
			s.Input = &inputRef
			s.Side = side
			paths := loaded.Paths
			s.Atlas = &paths
			s.InputSpacingUm = vol.SpacingMicrometers()
			s.Fiducials = set
			s.Intermediate = nil
			s.FiducialRMS = 0
			s.ROI = nil
			s.Rigid = nil
			s.History = nil
			s.setMoving(inputRef)

			um := s.InputSpacingUm
			spacing := fmt.Sprintf("X:%dum, Y:%dum, Z:%dum", um[0], um[1], um[2])
			w.emit(output.LevelInfo, output.EventSessionInfo, StepStart, "Input spacing: "+spacing, map[string]any{
				"input":        input,
				"side":         string(side),
				"spacing_um":   um,
				"atlas_labels": set.Labels(),
				"kept_placed":  kept,
			})
			return fmt.Sprintf("%s selected, %s side atlas loaded (%d fiducials)", vol.Name, side.Title(), len(set.Entries)), nil
		},
	})
}

func resolveSide(raw, name string) (atlas.Side, error) {
	if raw != "" {
		return atlas.ParseSide(raw)
	}
	side, ok := atlas.DetectSide(name)
	if !ok {
		return "", fmt.Errorf("cannot detect side from %q; pass --side L or R", name)
	}
	return side, nil
}

func expandAtlasDir(raw string) (string, error) {
	dir, err := config.ExpandPath(raw)
	if err != nil {
		return "", fmt.Errorf("atlas.dir: %w", err)
	}
	if dir == "" {
		return "", fmt.Errorf("atlas.dir is not configured")
	}
	return filepath.Abs(dir)
}

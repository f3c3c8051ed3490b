package workflow

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jaa/tbprep/internal/fileops"
	"github.com/jaa/tbprep/internal/fiducial"
	"github.com/jaa/tbprep/internal/geom"
	"github.com/jaa/tbprep/internal/volume"
)

// Fiducials returns the current fiducial set, or nil before start.
func (w *Workflow) Fiducials() (*fiducial.Set, error) {
	session, err := w.view()
	if err != nil {
		return nil, err
	}
	return session.Fiducials, nil
}

// PlaceFiducial records the input position (RAS) of an atlas label.
func (w *Workflow) PlaceFiducial(ctx context.Context, label string, position geom.Vec3) error {
	return w.execute(ctx, step{
		name:  StepFiducialSet,
		ready: requireStarted(StepFiducialSet),
		run: func(_ context.Context, s *Session) (string, error) {
			if err := s.Fiducials.Place(label, position); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s placed at %s (%d/%d)", label, position, s.Fiducials.PlacedCount(), len(s.Fiducials.Entries)), nil
		},
	})
}

func (w *Workflow) ClearFiducial(ctx context.Context, label string) error {
	return w.execute(ctx, step{
		name:  StepFiducialClear,
		ready: requireStarted(StepFiducialClear),
		run: func(_ context.Context, s *Session) (string, error) {
			if err := s.Fiducials.Clear(label); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s cleared (%d/%d)", label, s.Fiducials.PlacedCount(), len(s.Fiducials.Entries)), nil
		},
	})
}

// ImportFiducials places every point of an fcsv file whose label matches an atlas label.
func (w *Workflow) ImportFiducials(ctx context.Context, path string) error {
	return w.execute(ctx, step{
		name:  StepFiducialImport,
		ready: requireStarted(StepFiducialImport),
		run: func(_ context.Context, s *Session) (string, error) {
			points, err := fiducial.ReadFile(path)
			if err != nil {
				return "", err
			}
			placed, ignored := s.Fiducials.Import(points)
			message := fmt.Sprintf("%d fiducials imported", placed)
			if len(ignored) > 0 {
				message += fmt.Sprintf(", ignored unknown labels: %s", strings.Join(ignored, ", "))
			}
			return message, nil
		},
	})
}

// ExportFiducials writes the placed input fiducials as an fcsv file.
func (w *Workflow) ExportFiducials(ctx context.Context, path string) error {
	return w.execute(ctx, step{
		name:  StepFiducialExport,
		ready: requireStarted(StepFiducialExport),
		run: func(_ context.Context, s *Session) (string, error) {
			points := s.Fiducials.InputPoints()
			err := fileops.WriteFileAtomic(path, func(wr io.Writer) error {
				return fiducial.Encode(wr, points)
			})
			if err != nil {
				return "", fmt.Errorf("write %s: %w", path, err)
			}
			return fmt.Sprintf("%d fiducials written to %s", len(points), path), nil
		},
	})
}

// ApplyFiducials fits the rigid transform from input to atlas landmarks and attaches it,
// unhardened, to a copy of the input volume.
func (w *Workflow) ApplyFiducials(ctx context.Context) error {
	return w.execute(ctx, step{
		name:  StepFiducialApply,
		ready: requirePlaced(StepFiducialApply),
		run: func(_ context.Context, s *Session) (string, error) {
			transform, rms, err := s.Fiducials.Fit()
			if err != nil {
				return "", err
			}
			s.Intermediate = &VolumeRef{
				Name:      s.Moving.Name + "_Fiducial",
				Path:      s.Input.Path,
				Transform: &transform,
			}
			s.FiducialRMS = rms
			return fmt.Sprintf("fiducial registration applied, RMS %.3f mm over %d pairs", rms, s.Fiducials.PlacedCount()), nil
		},
	})
}

// RevertFiducials drops the fiducial-registered volume.
func (w *Workflow) RevertFiducials(ctx context.Context) error {
	return w.execute(ctx, step{
		name:  StepFiducialRevert,
		ready: requireIntermediate(StepFiducialRevert),
		run: func(_ context.Context, s *Session) (string, error) {
			name := s.Intermediate.Name
			s.Intermediate = nil
			s.FiducialRMS = 0
			return name + " removed", nil
		},
	})
}

// HardenFiducials bakes the fiducial transform into the intermediate volume geometry and
// makes it the moving volume.
func (w *Workflow) HardenFiducials(ctx context.Context) error {
	return w.execute(ctx, step{
		name:  StepFiducialHarden,
		ready: requireIntermediate(StepFiducialHarden),
		run: func(_ context.Context, s *Session) (string, error) {
			vol, err := loadVolume(s.Intermediate)
			if err != nil {
				return "", fmt.Errorf("load %s: %w", s.Intermediate.Name, err)
			}
			if s.Intermediate.Transform != nil {
				vol.Harden(*s.Intermediate.Transform)
			}
			path := volumePath(w.Workspace, vol.Name)
			if err := volume.Write(path, vol); err != nil {
				return "", fmt.Errorf("write %s: %w", vol.Name, err)
			}
			s.setMoving(VolumeRef{Name: vol.Name, Path: path})
			s.Intermediate = nil
			return vol.Name + " hardened and set as moving volume", nil
		},
	})
}

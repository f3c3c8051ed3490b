package workflow

import (
	"context"
	"fmt"

	"github.com/jaa/tbprep/internal/geom"
	"github.com/jaa/tbprep/internal/roi"
	"github.com/jaa/tbprep/internal/volume"
)

// CropStart fits a box around the whole moving volume and keeps it pending.
func (w *Workflow) CropStart(ctx context.Context) error {
	return w.execute(ctx, step{
		name:  StepCropStart,
		ready: requireMoving(StepCropStart),
		run: func(_ context.Context, s *Session) (string, error) {
			vol, err := loadVolume(s.Moving)
			if err != nil {
				return "", fmt.Errorf("load moving volume: %w", err)
			}
			box := roi.FitToVolume(vol)
			s.ROI = &box
			return describeROI(box), nil
		},
	})
}

// CropAdjust moves or resizes the pending box. Nil arguments keep the current value.
func (w *Workflow) CropAdjust(ctx context.Context, center, radius *geom.Vec3) error {
	return w.execute(ctx, step{
		name:  StepCropROI,
		ready: requireROI(StepCropROI),
		run: func(_ context.Context, s *Session) (string, error) {
			box := *s.ROI
			if center != nil {
				box.Center = *center
			}
			if radius != nil {
				box.Radius = *radius
			}
			if err := box.Validate(); err != nil {
				return "", err
			}
			s.ROI = &box
			return describeROI(box), nil
		},
	})
}

// CropAccept extracts the box from the moving volume and makes the crop the moving volume.
func (w *Workflow) CropAccept(ctx context.Context) error {
	return w.execute(ctx, step{
		name:  StepCropAccept,
		ready: requireROI(StepCropAccept),
		run: func(ctx context.Context, s *Session) (string, error) {
			vol, err := loadVolume(s.Moving)
			if err != nil {
				return "", fmt.Errorf("load moving volume: %w", err)
			}
			out, err := roi.Crop(ctx, vol, *s.ROI, w.Config.Crop.FillValue, w.threads())
			if err != nil {
				return "", err
			}
			path := volumePath(w.Workspace, out.Name)
			if err := volume.Write(path, out); err != nil {
				return "", fmt.Errorf("write %s: %w", out.Name, err)
			}
			s.setMoving(VolumeRef{Name: out.Name, Path: path})
			s.ROI = nil
			return fmt.Sprintf("%s cropped to %v voxels", out.Name, out.Size), nil
		},
	})
}

func (w *Workflow) CropCancel(ctx context.Context) error {
	return w.execute(ctx, step{
		name:  StepCropCancel,
		ready: requireROI(StepCropCancel),
		run: func(_ context.Context, s *Session) (string, error) {
			s.ROI = nil
			return "crop cancelled", nil
		},
	})
}

func describeROI(box roi.ROI) string {
	return fmt.Sprintf("crop box center %s radius %s (RAS)", box.Center, box.Radius)
}

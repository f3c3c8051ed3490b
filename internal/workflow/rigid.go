package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jaa/tbprep/internal/config"
	"github.com/jaa/tbprep/internal/elastix"
	"github.com/jaa/tbprep/internal/engine"
	"github.com/jaa/tbprep/internal/fileops"
	"github.com/jaa/tbprep/internal/output"
	"github.com/jaa/tbprep/internal/output/compact"
	"github.com/jaa/tbprep/internal/progress"
	"github.com/jaa/tbprep/internal/volume"
)

const (
	lineRegisterVolumes  = "Register volumes..."
	lineGenerateOutput   = "Generate output..."
	lineRegistrationDone = "Registration is completed."
	messageCancelled     = "Registration is cancelled."
	rigidDir             = "rigid"
)

type RigidOptions struct {
	// ParameterFile overrides the configured elastix parameter file.
	ParameterFile string
}

// Rigid registers the moving volume to the atlas with elastix. Every tool line feeds the
// progress tracker; RequestCancel on the tracker stops the run cooperatively.
func (w *Workflow) Rigid(ctx context.Context, opts RigidOptions) error {
	return w.execute(ctx, step{
		name:  StepRigid,
		ready: requireMoving(StepRigid),
		run: func(ctx context.Context, s *Session) (string, error) {
			token := w.Tracker.Begin()
			run := &RigidRun{
				Status:    RigidRunning,
				OutputDir: filepath.Join(w.Workspace, rigidDir, w.now().Format("20060102-150405")),
				Output:    string(w.Config.Elastix.Output),
				Started:   w.now(),
			}
			s.Rigid = run

			message, err := w.register(ctx, s, opts, token)
			snapshot := w.Tracker.Snapshot()
			run.Percent = snapshot.Percent
			run.LastStatus = snapshot.Status
			run.Finished = w.now()
			switch {
			case err == nil:
				run.Status = RigidFinished
			case errors.Is(err, engine.ErrCancelled), errors.Is(err, context.Canceled):
				run.Status = RigidCancelled
				message = messageCancelled
			default:
				run.Status = RigidFailed
			}
			return message, err
		},
	})
}

func (w *Workflow) register(ctx context.Context, s *Session, opts RigidOptions, token *progress.CancelToken) (string, error) {
	stream := elastix.Stream{OnLine: w.observeLine, Cancel: token.Done()}
	w.observeLine(lineRegisterVolumes)

	parameterFile, err := w.parameterFile(opts)
	if err != nil {
		return "", err
	}
	result, err := w.Registration.Register(ctx, elastix.Request{
		Fixed:         s.Atlas.Volume,
		Moving:        s.Moving.Path,
		FixedMask:     s.Atlas.Mask,
		MovingMask:    s.Atlas.Mask,
		ParameterFile: parameterFile,
		OutputDir:     s.Rigid.OutputDir,
	}, stream)
	if err != nil {
		return "", err
	}
	transform := result.Transform
	s.Rigid.Transform = &transform
	s.Rigid.TransformFile = result.TransformFile
	w.Logger.Debugw("elastix finished", "duration", result.Duration, "transform_file", result.TransformFile)

	if token.Cancelled() {
		return "", fmt.Errorf("rigid registration: %w", engine.ErrCancelled)
	}
	w.observeLine(lineGenerateOutput)

	var registered *volume.Volume
	switch w.Config.Elastix.Output {
	case config.OutputHarden:
		registered, err = loadVolume(s.Moving)
		if err != nil {
			return "", fmt.Errorf("load moving volume: %w", err)
		}
		// elastix maps atlas to moving; the moving volume goes the other way.
		registered.Harden(transform.Inverse())
	default:
		image, err := w.Registration.Resample(ctx, result.TransformFile, s.Moving.Path, stream)
		if err != nil {
			return "", err
		}
		registered, err = volume.Read(image)
		if err != nil {
			return "", fmt.Errorf("read transformix result: %w", err)
		}
	}
	registered.Name = s.Moving.Name + "_Elastix"
	path := volumePath(w.Workspace, registered.Name)
	if err := volume.Write(path, registered); err != nil {
		return "", fmt.Errorf("write %s: %w", registered.Name, err)
	}
	s.setMoving(VolumeRef{Name: registered.Name, Path: path})

	w.observeLine(lineRegistrationDone)
	return lineRegistrationDone, nil
}

// observeLine feeds one status line to the tracker and reports it. Optimiser tables and
// separators only move the tracker.
func (w *Workflow) observeLine(line string) {
	update := w.Tracker.Observe(line)
	kind := compact.ClassifyLine(line)
	if kind == compact.LineKindNoise {
		return
	}
	w.Logger.Debugw("registration output", "line", line, "percent", update.Percent, "matched", update.Matched)
	level := output.LevelInfo
	if kind == compact.LineKindWarning || kind == compact.LineKindError {
		level = output.LevelWarn
	}
	w.emit(level, output.EventStepProgress, StepRigid, update.Status, map[string]any{
		"status":    update.Status,
		"percent":   update.Percent,
		"matched":   update.Matched,
		"completed": update.Completed,
		"kind":      string(kind),
	})
}

// parameterFile resolves the elastix parameter file, writing the built-in rigid
// parameters to the workspace when none is configured.
func (w *Workflow) parameterFile(opts RigidOptions) (string, error) {
	configured := opts.ParameterFile
	if configured == "" {
		configured = w.Config.Elastix.ParameterFile
	}
	if configured != "" {
		path, err := config.ResolveInWorkspace(w.Workspace, configured)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("parameter file: %w", err)
		}
		return path, nil
	}

	path := filepath.Join(w.Workspace, elastix.DefaultParameterFileName)
	err := fileops.WriteFileAtomic(path, func(wr io.Writer) error {
		_, err := io.WriteString(wr, elastix.DefaultRigidParameters)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("write default parameter file: %w", err)
	}
	return path, nil
}

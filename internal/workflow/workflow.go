// Package workflow runs the preprocessing steps against a workspace session: selecting
// the input and side, resampling, fiducial registration, intensity registration,
// cropping and saving.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaa/tbprep/internal/config"
	"github.com/jaa/tbprep/internal/elastix"
	"github.com/jaa/tbprep/internal/engine"
	"github.com/jaa/tbprep/internal/output"
	"github.com/jaa/tbprep/internal/progress"
	"go.uber.org/zap"
)

const (
	StepStart           = "start"
	StepResample        = "resample"
	StepFiducialSet     = "fiducial set"
	StepFiducialClear   = "fiducial clear"
	StepFiducialImport  = "fiducial import"
	StepFiducialExport  = "fiducial export"
	StepFiducialApply   = "fiducial apply"
	StepFiducialRevert  = "fiducial revert"
	StepFiducialHarden  = "fiducial harden"
	StepRigid           = "rigid"
	StepCropStart       = "crop start"
	StepCropROI         = "crop roi"
	StepCropAccept      = "crop accept"
	StepCropCancel      = "crop cancel"
	StepSave            = "save"
	failureMessageLimit = 60
)

type Workflow struct {
	Config       config.Config
	Workspace    string
	Registration *elastix.Registration
	Tracker      *progress.Tracker
	Emitter      output.EventEmitter
	Logger       *zap.SugaredLogger
	Now          func() time.Time
}

func New(cfg config.Config, runner engine.ExecRunner, emitter output.EventEmitter, logger *zap.SugaredLogger) (*Workflow, error) {
	workspace, err := config.ExpandPath(cfg.Defaults.Workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if emitter == nil {
		emitter = output.NoOpEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	tools := elastix.Tools{
		Elastix:     cfg.Elastix.Elastix,
		Transformix: cfg.Elastix.Transformix,
		Threads:     cfg.Defaults.Threads,
		Timeout:     time.Duration(cfg.Defaults.CommandTimeoutSeconds) * time.Second,
	}
	return &Workflow{
		Config:       cfg,
		Workspace:    workspace,
		Registration: &elastix.Registration{Tools: tools, Runner: runner},
		Tracker:      progress.NewTracker(),
		Emitter:      emitter,
		Logger:       logger,
		Now:          time.Now,
	}, nil
}

// step is one workflow action. ready is checked before the step starts and must not
// mutate the session.
type step struct {
	name  string
	ready func(s *Session) error
	run   func(ctx context.Context, s *Session) (string, error)
}

// execute applies the same policy to every step: take the workspace lock, refuse when a
// precondition is missing, run, report any failure as a short message, and persist the
// session whatever happened. Nothing is rolled back.
func (w *Workflow) execute(ctx context.Context, st step) error {
	lock, err := AcquireLock(w.Workspace, st.name, w.now())
	if err != nil {
		w.emit(output.LevelWarn, output.EventStepRefused, st.name, err.Error(), nil)
		return err
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			w.Logger.Warnw("release workspace lock", "error", releaseErr)
		}
	}()

	session, err := LoadSession(w.Workspace)
	if err != nil {
		w.emit(output.LevelError, output.EventStepFailed, st.name, failureMessage(err), nil)
		return err
	}
	if st.ready != nil {
		if err := st.ready(session); err != nil {
			w.emit(output.LevelWarn, output.EventStepRefused, st.name, err.Error(), nil)
			return err
		}
	}

	w.Logger.Debugw("step started", "step", st.name, "workspace", w.Workspace)
	w.emit(output.LevelInfo, output.EventStepStarted, st.name, st.name+" started", nil)
	started := w.now()
	message, runErr := st.run(ctx, session)

	session.UpdatedAt = w.now()
	saveErr := SaveSession(w.Workspace, session)
	if runErr == nil && saveErr != nil {
		runErr = fmt.Errorf("save session: %w", saveErr)
	} else if saveErr != nil {
		w.Logger.Errorw("save session after failed step", "step", st.name, "error", saveErr)
	}

	details := map[string]any{"duration_ms": w.now().Sub(started).Milliseconds()}
	switch {
	case runErr == nil:
		w.Logger.Debugw("step finished", "step", st.name, "duration", w.now().Sub(started))
		w.emit(output.LevelInfo, output.EventStepFinished, st.name, message, details)
		return nil
	case errors.Is(runErr, engine.ErrCancelled), errors.Is(runErr, context.Canceled):
		if message == "" {
			message = st.name + " cancelled"
		}
		w.emit(output.LevelWarn, output.EventStepCancelled, st.name, message, details)
		return runErr
	default:
		w.Logger.Debugw("step failed", "step", st.name, "error", runErr)
		details["error"] = runErr.Error()
		w.emit(output.LevelError, output.EventStepFailed, st.name, failureMessage(runErr), details)
		return runErr
	}
}

// view loads the session without locking, for read-only commands.
func (w *Workflow) view() (*Session, error) {
	return LoadSession(w.Workspace)
}

func failureMessage(err error) string {
	message := "Error: " + err.Error()
	runes := []rune(message)
	if len(runes) > failureMessageLimit {
		return string(runes[:failureMessageLimit]) + ".."
	}
	return message
}

func (w *Workflow) emit(level output.Level, name output.EventName, stepName, message string, details map[string]any) {
	if err := w.Emitter.Emit(output.Event{
		Timestamp: w.now(),
		Level:     level,
		Event:     name,
		Step:      stepName,
		Message:   message,
		Details:   details,
	}); err != nil {
		w.Logger.Warnw("emit event", "event", name, "error", err)
	}
}

func (w *Workflow) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

func (w *Workflow) threads() int {
	return w.Config.Defaults.Threads
}

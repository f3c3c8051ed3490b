package workflow

import (
	"errors"

	"github.com/jaa/tbprep/internal/fiducial"
)

// Availability tells whether a step can run now, and why not.
type Availability struct {
	Step   string `json:"step"`
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

type Status struct {
	Workspace string         `json:"workspace"`
	Busy      string         `json:"busy,omitempty"`
	Session   *Session       `json:"session"`
	Steps     []Availability `json:"steps"`
}

// Status reports the session and the availability of every step without taking the lock.
func (w *Workflow) Status() (Status, error) {
	session, err := w.view()
	if err != nil {
		return Status{}, err
	}
	status := Status{Workspace: w.Workspace, Session: session}
	if holder, busy := LockHolder(w.Workspace); busy {
		status.Busy = holder
	}
	for _, check := range readinessChecks() {
		availability := Availability{Step: check.step, Ready: true}
		if err := check.ready(session); err != nil {
			availability.Ready = false
			var notReadyErr *NotReadyError
			if errors.As(err, &notReadyErr) {
				availability.Reason = notReadyErr.Reason
			} else {
				availability.Reason = err.Error()
			}
		}
		status.Steps = append(status.Steps, availability)
	}
	return status, nil
}

type readinessCheck struct {
	step  string
	ready func(*Session) error
}

func readinessChecks() []readinessCheck {
	return []readinessCheck{
		{StepResample, requireMoving(StepResample)},
		{StepFiducialSet, requireStarted(StepFiducialSet)},
		{StepFiducialApply, requirePlaced(StepFiducialApply)},
		{StepFiducialRevert, requireIntermediate(StepFiducialRevert)},
		{StepFiducialHarden, requireIntermediate(StepFiducialHarden)},
		{StepRigid, requireMoving(StepRigid)},
		{StepCropStart, requireMoving(StepCropStart)},
		{StepCropAccept, requireROI(StepCropAccept)},
		{StepSave, requireMoving(StepSave)},
	}
}

func requireStarted(name string) func(*Session) error {
	return func(s *Session) error {
		if !s.Started() {
			return notReady(name, "no input volume and side selected (run start)")
		}
		return nil
	}
}

func requireMoving(name string) func(*Session) error {
	return func(s *Session) error {
		if err := requireStarted(name)(s); err != nil {
			return err
		}
		if s.Moving == nil {
			return notReady(name, "no moving volume")
		}
		return nil
	}
}

func requirePlaced(name string) func(*Session) error {
	return func(s *Session) error {
		if err := requireStarted(name)(s); err != nil {
			return err
		}
		if !s.Fiducials.Ready() {
			return notReady(name, "%d of %d required fiducials placed", s.Fiducials.PlacedCount(), fiducial.MinimumPairs)
		}
		return nil
	}
}

func requireIntermediate(name string) func(*Session) error {
	return func(s *Session) error {
		if s.Intermediate == nil {
			return notReady(name, "no fiducial-registered volume (run fiducial apply)")
		}
		return nil
	}
}

func requireROI(name string) func(*Session) error {
	return func(s *Session) error {
		if err := requireMoving(name)(s); err != nil {
			return err
		}
		if s.ROI == nil {
			return notReady(name, "no crop in progress (run crop start)")
		}
		return nil
	}
}

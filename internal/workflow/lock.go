package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockFileName = ".lock"

// Lock marks the workspace busy for the duration of one step.
type Lock struct {
	path string
}

func AcquireLock(workspace string, step string, now time.Time) (*Lock, error) {
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", workspace, err)
	}
	path := filepath.Join(workspace, lockFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			holder, _ := os.ReadFile(path)
			return nil, &BusyError{LockPath: path, Holder: string(holder)}
		}
		return nil, fmt.Errorf("lock workspace: %w", err)
	}
	_, writeErr := fmt.Fprintf(f, "%s by pid %d since %s", step, os.Getpid(), now.Format(time.RFC3339))
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("lock workspace: %w", errors.Join(writeErr, closeErr))
	}
	return &Lock{path: path}, nil
}

func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unlock workspace: %w", err)
	}
	return nil
}

// LockHolder returns the description stored in an existing lock file.
func LockHolder(workspace string) (string, bool) {
	payload, err := os.ReadFile(filepath.Join(workspace, lockFileName))
	if err != nil {
		return "", false
	}
	return string(payload), true
}

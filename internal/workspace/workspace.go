// Package workspace manages the per-run scratch directory that holds the
// narration, background and rendered video of a single pipeline run.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for workspace operations.
var (
	// ErrLocked indicates another run holds the work root.
	ErrLocked = errors.New("workspace: another run is in progress")
)

// Error wraps filesystem errors with the operation and path involved.
type Error struct {
	Op   string
	Path string
	Err  error
}

// Error returns a string representation of the workspace error.
func (e *Error) Error() string {
	return fmt.Sprintf("workspace: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *Error) Unwrap() error { return e.Err }

const lockFileName = ".lock"

// Workspace is a run directory under a shared root. Only one Workspace per
// root may be open at a time.
type Workspace struct {
	// Root is the shared work directory.
	Root string
	// RunID identifies the run; it names the run directory.
	RunID string
	// Dir is Root/RunID.
	Dir string

	lock *FileLock
}

// NewRunID returns a time-ordered run identifier.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Open locks root and creates a fresh run directory inside it.
// It fails with ErrLocked if another process holds root for longer than lockTimeout.
func Open(root string, lockTimeout time.Duration) (*Workspace, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &Error{Op: "create", Path: root, Err: err}
	}

	lock := NewFileLock(filepath.Join(root, lockFileName))
	if err := lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	runID := NewRunID()
	dir := filepath.Join(root, runID)
	if err := os.Mkdir(dir, 0755); err != nil {
		lock.Unlock()
		return nil, &Error{Op: "create", Path: dir, Err: err}
	}

	return &Workspace{Root: root, RunID: runID, Dir: dir, lock: lock}, nil
}

// Path returns the location of name inside the run directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Remove deletes the given files. Missing files are not an error.
func (w *Workspace) Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, &Error{Op: "remove", Path: p, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Cleanup removes the run directory and everything left in it.
func (w *Workspace) Cleanup() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return &Error{Op: "cleanup", Path: w.Dir, Err: err}
	}
	return nil
}

// Close releases the root lock. It does not remove the run directory.
func (w *Workspace) Close() error {
	return w.lock.Unlock()
}

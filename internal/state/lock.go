package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another run holds the state file.
var ErrLocked = errors.New("another updatr run is already using this state file")

// Lock is an exclusive advisory lock next to a state file.
type Lock struct {
	lock *flock.Flock
}

// LockPath returns the lock file used for the state file at statePath.
func LockPath(statePath string) string {
	return statePath + ".lock"
}

// AcquireLock takes a non-blocking exclusive lock for statePath.
func AcquireLock(statePath string) (*Lock, error) {
	lockPath := LockPath(statePath)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, lockPath)
	}
	return &Lock{lock: fl}, nil
}

// Release unlocks. Safe to call on nil.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

package store

import (
	"fmt"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/gofrs/flock"
)

// RunLock is the advisory file lock that keeps two runs off the same store.
type RunLock struct {
	fl *flock.Flock
}

// AcquireRunLock takes the lock at path without blocking. If another process
// holds it, a *model.ConcurrentRunError is returned.
func AcquireRunLock(path string) (*RunLock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock %s: %w", path, err)
	}
	if !ok {
		return nil, &model.ConcurrentRunError{LockPath: path}
	}
	return &RunLock{fl: fl}, nil
}

// Release unlocks. It is safe to call more than once.
func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

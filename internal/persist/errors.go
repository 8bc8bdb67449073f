package persist

import (
	"errors"
	"fmt"
)

var (
	// ErrNothingToSave is returned by Save for an empty buffer.
	ErrNothingToSave = errors.New("nothing to save")
	// ErrSaveInProgress is returned by Save while another save is pending.
	ErrSaveInProgress = errors.New("a save is already in progress")
)

// PersistenceError reports a failed insert. The buffer is left intact.
type PersistenceError struct {
	Count int
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %d samples: %v", e.Count, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

package labeling

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyName is returned when a blank activity or sub-activity name is added.
	ErrEmptyName = errors.New("activity name is empty")
	// ErrNoActivity is returned when a session is started without an activity selected.
	ErrNoActivity = errors.New("no activity selected")
	// ErrSessionActive is returned when a session is started while one is recording.
	ErrSessionActive = errors.New("a recording session is already active")
	// ErrNoRecorder is returned when the controller has no stream bound.
	ErrNoRecorder = errors.New("no recorder bound to controller")
)

// DuplicateActivityError rejects a name that is already in the catalog.
type DuplicateActivityError struct {
	// Activity is set when the duplicate is a sub-activity.
	Activity string
	Name     string
}

func (e *DuplicateActivityError) Error() string {
	if e.Activity != "" {
		return fmt.Sprintf("sub-activity %q already exists for %q", e.Name, e.Activity)
	}
	return fmt.Sprintf("activity %q already exists", e.Name)
}

// UnknownActivityError is returned when an operation names an activity
// that is not in the catalog.
type UnknownActivityError struct {
	Name string
}

func (e *UnknownActivityError) Error() string {
	return fmt.Sprintf("unknown activity %q", e.Name)
}

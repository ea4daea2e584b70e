package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned when a mutation names a field that is
	// not part of the session state.
	ErrUnknownField = errors.New("unknown field")
	// ErrBusy is returned when a pipeline is already in flight.
	ErrBusy = errors.New("editor is busy")
	// ErrClosed is returned when confirming an editor that is not open.
	ErrClosed = errors.New("editor is closed")
	// ErrCollaborator matches every CollaboratorError via errors.Is.
	ErrCollaborator = errors.New("collaborator failed")
	// ErrHostPanic wraps a panic raised by a Host callback.
	ErrHostPanic = errors.New("host callback panicked")
)

// CollaboratorError reports that a remote confirm/delete hook (or the host
// merge step) failed. Local state is untouched when this is returned.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCollaborator) true for any CollaboratorError.
func (e *CollaboratorError) Is(target error) bool { return target == ErrCollaborator }

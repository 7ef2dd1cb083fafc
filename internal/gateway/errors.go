package gateway

import (
	"errors"
	"fmt"

	"pybridge/internal/interp"
)

// SetupError reports a failed bridge setup as a single error carrying the
// step that failed and the originating cause. When the failure happened
// inside the interpreter, ObjectID names the remote error object, which
// stays recoverable against the live bridge via Session.RemoteError.
type SetupError struct {
	Step     string
	ObjectID string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("bridge setup failed at %s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func setupErr(step string, err error) *SetupError {
	out := &SetupError{Step: step, Err: err}
	var remote *interp.RemoteError
	if errors.As(err, &remote) {
		out.ObjectID = remote.ObjectID
	}
	return out
}

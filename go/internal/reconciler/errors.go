package reconciler

import (
	"errors"
	"fmt"
)

var (
	// ErrClosedByServer ends the receive loop when the server revokes the
	// subscription.
	ErrClosedByServer = errors.New("subscription closed by server")
	// ErrStaleUpdate marks a reset that arrived outside the recency window.
	ErrStaleUpdate = errors.New("stale update ignored")
	// ErrStateMissing is returned when no show is loaded to apply an update to.
	ErrStateMissing = errors.New("application state is missing")
)

// FatalHandlerError aborts processing of a single message. The connection
// stays up.
type FatalHandlerError struct {
	Tag string
	Err error
}

func (e *FatalHandlerError) Error() string {
	return fmt.Sprintf("fatal error handling %s: %v", e.Tag, e.Err)
}

func (e *FatalHandlerError) Unwrap() error {
	return e.Err
}

func fatal(tag string, err error) error {
	return &FatalHandlerError{Tag: tag, Err: err}
}

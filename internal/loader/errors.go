package loader

import "errors"

// loadError signals that the weights materialized on disk but the runtime
// rejected the artifact (corrupt or incompatible). Terminal for the process.
type loadError struct{ err error }

func (e *loadError) Error() string { return "model load failed: " + e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

// ErrLoad wraps a runtime load rejection.
func ErrLoad(err error) error { return &loadError{err: err} }

// IsLoadFailure reports whether err indicates a rejected model artifact.
func IsLoadFailure(err error) bool {
	var le *loadError
	return errors.As(err, &le)
}

package cache

import "errors"

// downloadError signals a network/storage failure fetching from the bucket or
// origin, with the originating cause preserved.
type downloadError struct {
	op  string
	err error
}

func (e *downloadError) Error() string { return e.op + ": " + e.err.Error() }
func (e *downloadError) Unwrap() error { return e.err }

// ErrDownload wraps err as a download failure for the given operation.
func ErrDownload(op string, err error) error { return &downloadError{op: op, err: err} }

// IsDownloadFailure reports whether err indicates a bucket/origin transfer failure.
func IsDownloadFailure(err error) bool {
	var de *downloadError
	return errors.As(err, &de)
}

// authError signals a missing or rejected credential for a gated model. It is
// kept distinct from downloadError so operators can tell "wrong token" from
// "network down".
type authError struct {
	op  string
	err error
}

func (e *authError) Error() string { return e.op + ": " + e.err.Error() }
func (e *authError) Unwrap() error { return e.err }

// ErrAuth wraps err as an authentication failure for the given operation.
func ErrAuth(op string, err error) error { return &authError{op: op, err: err} }

// IsAuthFailure reports whether err indicates a credential problem.
func IsAuthFailure(err error) bool {
	var ae *authError
	return errors.As(err, &ae)
}

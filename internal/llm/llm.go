// Package llm abstracts the model runtime used for text generation.
// Keep this surface small; hot math stays in C/C++.
package llm

import "context"

// Runtime loads model weights from a local path into a usable Model.
type Runtime interface {
	Load(modelPath string) (Model, error)
}

// Model is a loaded model handle. Implementations must be safe for
// concurrent Generate calls; the handle is shared process-wide once ready.
type Model interface {
	// Generate produces a continuation of text with at most maxLength tokens
	// of total sequence length. It must return promptly once ctx is canceled.
	Generate(ctx context.Context, text string, maxLength int) (string, error)
	// Close releases native resources.
	Close() error
}

// runtimeUnavailableError signals a missing runtime dependency (e.g. a binary
// built without llama support) so the HTTP layer can return 503 instead of 500.
type runtimeUnavailableError struct{ msg string }

func (e runtimeUnavailableError) Error() string { return e.msg }

// ErrRuntimeUnavailable constructs a runtimeUnavailableError.
func ErrRuntimeUnavailable(msg string) error { return runtimeUnavailableError{msg: msg} }

// IsRuntimeUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsRuntimeUnavailable(err error) bool {
	_, ok := err.(runtimeUnavailableError)
	return ok
}

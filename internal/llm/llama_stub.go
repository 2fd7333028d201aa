//go:build !llama

package llm

import "context"

// This file provides a no-CGO stub for the llama runtime. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// The real runtime lives in llama.go (tagged 'llama').

var llamaBuilt = false

type llamaRuntime struct {
	ctxSize int
	threads int
}

// NewLlamaRuntime returns a stub that refuses to load without the 'llama'
// build tag. This avoids any mocked behavior in production binaries built
// without CGO support.
func NewLlamaRuntime(ctxSize, threads int) Runtime {
	return &llamaRuntime{ctxSize: ctxSize, threads: threads}
}

func (r *llamaRuntime) Load(modelPath string) (Model, error) {
	return nil, ErrRuntimeUnavailable("llama support not built (missing 'llama' build tag)")
}

type llamaModel struct{}

func (m *llamaModel) Generate(ctx context.Context, text string, maxLength int) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return "", ErrRuntimeUnavailable("llama support not built (missing 'llama' build tag)")
}

func (m *llamaModel) Close() error { return nil }

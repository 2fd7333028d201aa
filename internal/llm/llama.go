//go:build llama

package llm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaRuntime holds global config used to initialize the model.
type llamaRuntime struct {
	ctxSize int
	threads int
}

// NewLlamaRuntime returns the in-process llama.cpp runtime.
func NewLlamaRuntime(ctxSize, threads int) Runtime {
	return &llamaRuntime{ctxSize: ctxSize, threads: threads}
}

// llamaModel owns the loaded native model. Predict is not reentrant, so a
// mutex serializes generations on the shared handle.
type llamaModel struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
}

func (r *llamaRuntime) Load(modelPath string) (Model, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	ggufPath, err := findWeightsFile(modelPath)
	if err != nil {
		return nil, err
	}
	m, err := llama.New(ggufPath, llama.SetContext(r.ctxSize))
	if err != nil {
		return nil, err
	}
	return &llamaModel{model: m, threads: r.threads}, nil
}

// findWeightsFile accepts either a weights file directly or a cache entry
// directory containing one *.gguf file.
func findWeightsFile(modelPath string) (string, error) {
	if strings.HasSuffix(modelPath, ".gguf") {
		return modelPath, nil
	}
	matches, err := filepath.Glob(filepath.Join(modelPath, "*.gguf"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no *.gguf weights under %s", modelPath)
	}
	return matches[0], nil
}

func (m *llamaModel) Generate(ctx context.Context, text string, maxLength int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model == nil {
		return "", errors.New("llama model not initialized")
	}
	// Bridge the native token loop to ctx so cancellation stops generation.
	m.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	out, err := m.model.Predict(text,
		llama.SetTokens(max(1, maxLength)),
		llama.SetThreads(max(1, m.threads)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return text + out, nil
}

func (m *llamaModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

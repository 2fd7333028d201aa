package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"gend/internal/cache"
	"gend/internal/llm"
	"gend/internal/loader"
	"gend/pkg/types"
)

type echoModel struct{}

func (echoModel) Generate(ctx context.Context, text string, maxLength int) (string, error) {
	return text + " and more", nil
}
func (echoModel) Close() error { return nil }

type echoRuntime struct{}

func (echoRuntime) Load(modelPath string) (llm.Model, error) { return echoModel{}, nil }

// newService wires a Service over a counting resolver so tests can assert
// whether a request triggered the cold load.
func newService(t *testing.T, resolveErr error) (*Service, *atomic.Int32) {
	t.Helper()
	var resolves atomic.Int32
	ld := loader.New(loader.Config{
		ModelID: "org/tiny-model",
		Resolve: func(ctx context.Context, modelID string) (string, error) {
			resolves.Add(1)
			if resolveErr != nil {
				return "", resolveErr
			}
			return "/cache/org--tiny-model", nil
		},
		Runtime: echoRuntime{},
		Log:     zerolog.Nop(),
	})
	svc := New(Config{Loader: ld, MaxLengthLimit: 100, Log: zerolog.Nop()})
	return svc, &resolves
}

func TestGenerateValidationNeverTriggersLoad(t *testing.T) {
	svc, resolves := newService(t, nil)
	cases := []types.GenerateRequest{
		{Text: "", MaxLength: 10},
		{Text: "   ", MaxLength: 10},
		{Text: "hi", MaxLength: 0},
		{Text: "hi", MaxLength: -5},
		{Text: "hi", MaxLength: 101}, // above the configured ceiling
	}
	for _, req := range cases {
		_, err := svc.Generate(context.Background(), req)
		if !IsInvalidRequest(err) { t.Fatalf("req %+v: expected invalid request, got %v", req, err) }
	}
	if n := resolves.Load(); n != 0 { t.Fatalf("validation triggered %d loads", n) }
}

func TestGenerateColdThenWarm(t *testing.T) {
	svc, resolves := newService(t, nil)
	req := types.GenerateRequest{Text: "Hello", MaxLength: 10}

	resp, err := svc.Generate(context.Background(), req)
	if err != nil { t.Fatalf("err: %v", err) }
	if resp.GeneratedText == "" { t.Fatal("empty generated_text") }
	if n := resolves.Load(); n != 1 { t.Fatalf("resolves: %d", n) }

	// Warm path must not resolve again.
	if _, err := svc.Generate(context.Background(), req); err != nil { t.Fatalf("err: %v", err) }
	if n := resolves.Load(); n != 1 { t.Fatalf("resolves after warm call: %d", n) }
	if !svc.Ready() { t.Fatal("service not ready after load") }
}

func TestGenerateLoaderFailurePropagatesUnchanged(t *testing.T) {
	cause := cache.ErrAuth("list origin tree", errors.New("origin returned 401"))
	svc, _ := newService(t, cause)

	_, err := svc.Generate(context.Background(), types.GenerateRequest{Text: "hi", MaxLength: 5})
	if err == nil { t.Fatal("expected error") }
	if !cache.IsAuthFailure(err) { t.Fatalf("classification lost through service: %v", err) }
}

func TestStatusReflectsLifecycle(t *testing.T) {
	svc, _ := newService(t, nil)
	st := svc.Status()
	if st.State != string(loader.StateUnloaded) { t.Fatalf("state: %s", st.State) }
	if st.ModelID != "org/tiny-model" { t.Fatalf("model: %s", st.ModelID) }

	if _, err := svc.Generate(context.Background(), types.GenerateRequest{Text: "hi", MaxLength: 5}); err != nil {
		t.Fatalf("err: %v", err)
	}
	st = svc.Status()
	if st.State != string(loader.StateReady) { t.Fatalf("state: %s", st.State) }
	if st.LocalPath == "" { t.Fatal("local path missing") }
}

func TestStatusAfterFailure(t *testing.T) {
	svc, _ := newService(t, errors.New("network down"))
	if _, err := svc.Generate(context.Background(), types.GenerateRequest{Text: "hi", MaxLength: 5}); err == nil {
		t.Fatal("expected error")
	}
	st := svc.Status()
	if st.State != string(loader.StateFailed) { t.Fatalf("state: %s", st.State) }
	if st.LastError == "" { t.Fatal("last_error missing") }
}

// Package loader owns the process-wide model lifecycle: a lazy, exactly-once
// materialization of the configured model, shared by every generation request.
package loader

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gend/internal/llm"
)

// State represents the lifecycle state of the process's single model.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// Snapshot is a read-only projection of the loader state.
type Snapshot struct {
	ModelID   string
	State     State
	LocalPath string
	Err       string
}

// ResolveFunc locates or materializes model weights and returns a local path.
type ResolveFunc func(ctx context.Context, modelID string) (string, error)

// Config encapsulates all tunables for Loader construction.
type Config struct {
	ModelID string
	Resolve ResolveFunc
	Runtime llm.Runtime
	// LoadTimeout bounds the one-time load sequence. The load runs detached
	// from any request context so a caller disconnect cannot poison the
	// process state; this is its only deadline.
	LoadTimeout time.Duration
	Log         zerolog.Logger
}

// Loader is the process-wide lazy singleton for the model handle.
//
// Ready and Failed are terminal: there is no automatic retry once a load has
// failed, a process restart is the retry path.
type Loader struct {
	mu        sync.Mutex
	state     State
	done      chan struct{} // closed on the Loading -> Ready|Failed transition
	handle    llm.Model
	err       error
	localPath string

	modelID     string
	resolve     ResolveFunc
	runtime     llm.Runtime
	loadTimeout time.Duration
	log         zerolog.Logger
}

// New constructs an unloaded Loader. No I/O happens until the first GetOrLoad.
func New(cfg Config) *Loader {
	return &Loader{
		state:       StateUnloaded,
		modelID:     cfg.ModelID,
		resolve:     cfg.Resolve,
		runtime:     cfg.Runtime,
		loadTimeout: cfg.LoadTimeout,
		log:         cfg.Log,
	}
}

// GetOrLoad returns the shared model handle, triggering the one-time load on
// first use. Concurrent callers during a cold start park until the winning
// load publishes Ready or Failed; ctx only bounds how long this caller waits,
// never the load itself.
func (l *Loader) GetOrLoad(ctx context.Context) (llm.Model, error) {
	l.mu.Lock()
	switch l.state {
	case StateReady:
		h := l.handle
		l.mu.Unlock()
		return h, nil
	case StateFailed:
		err := l.err
		l.mu.Unlock()
		return nil, err
	case StateUnloaded:
		l.state = StateLoading
		l.done = make(chan struct{})
		go l.load()
	}
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateReady {
		return l.handle, nil
	}
	return nil, l.err
}

// load performs the resolve + weight-materialization sequence exactly once.
func (l *Loader) load() {
	start := time.Now()
	ctx := context.Background()
	if l.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.loadTimeout)
		defer cancel()
	}

	l.log.Info().Str("model", l.modelID).Msg("cold load started")
	path, err := l.resolve(ctx, l.modelID)
	if err != nil {
		l.fail(err, start)
		return
	}
	handle, err := l.runtime.Load(path)
	if err != nil {
		if llm.IsRuntimeUnavailable(err) {
			l.fail(err, start)
			return
		}
		l.fail(ErrLoad(err), start)
		return
	}

	l.mu.Lock()
	l.state = StateReady
	l.handle = handle
	l.localPath = path
	close(l.done)
	l.mu.Unlock()
	loadSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	l.log.Info().Str("model", l.modelID).Str("path", path).
		Dur("dur", time.Since(start)).Msg("cold load complete")
}

// fail pins the loader into the terminal Failed state and wakes all waiters.
func (l *Loader) fail(err error, start time.Time) {
	l.mu.Lock()
	l.state = StateFailed
	l.err = err
	if l.handle != nil {
		_ = l.handle.Close()
		l.handle = nil
	}
	close(l.done)
	l.mu.Unlock()
	loadSeconds.WithLabelValues("failed").Observe(time.Since(start).Seconds())
	l.log.Error().Err(err).Str("model", l.modelID).Msg("cold load failed; restart to retry")
}

// Ready reports whether the model handle is available without triggering a load.
func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateReady
}

// Snapshot returns the current lifecycle state for status reporting.
func (l *Loader) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{ModelID: l.modelID, State: l.state, LocalPath: l.localPath}
	if l.err != nil {
		s.Err = l.err.Error()
	}
	return s
}

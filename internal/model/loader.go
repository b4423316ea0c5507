package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekisa-team/ttsd/internal/backend"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a lazily loaded model.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// LoadFunc produces a model handle. It may take a long time.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Loader holds a single process-wide model handle that is created on first
// use. Concurrent callers share one load attempt; once loaded the handle is
// read without locking. A failed attempt is reported to every waiter of that
// attempt and the next call tries again.
type Loader[T any] struct {
	load    LoadFunc[T]
	handle  atomic.Pointer[T]
	group   singleflight.Group
	name    string
	lastErr error
	state   State
	pending atomic.Int32
	mu      sync.RWMutex
}

// NewLoader creates a loader for the model called name.
func NewLoader[T any](name string, load LoadFunc[T]) *Loader[T] {
	return &Loader[T]{
		name:  name,
		load:  load,
		state: StateUnloaded,
	}
}

// Get returns the handle, loading it first when needed. The load itself is
// not cancelled by ctx; ctx only bounds how long this caller waits.
func (l *Loader[T]) Get(ctx context.Context) (T, error) {
	if h := l.handle.Load(); h != nil {
		return *h, nil
	}

	l.pending.Add(1)
	defer l.pending.Add(-1)

	ch := l.group.DoChan(l.name, func() (any, error) {
		// A waiter of a previous flight may have finished the job.
		if h := l.handle.Load(); h != nil {
			return h, nil
		}
		return l.doLoad(context.WithoutCancel(ctx))
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: waiting for %s: %w", backend.ErrEngineUnavailable, l.name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return *res.Val.(*T), nil
	}
}

func (l *Loader[T]) doLoad(ctx context.Context) (*T, error) {
	l.setState(StateLoading, nil)
	slog.Info("Loading model", "model", l.name)
	start := time.Now()

	h, err := l.load(ctx)
	if err != nil {
		err = fmt.Errorf("%w: loading %s: %w", backend.ErrEngineUnavailable, l.name, err)
		l.setState(StateFailed, err)
		slog.Error("Model load failed", "model", l.name, "error", err)
		return nil, err
	}

	l.handle.Store(&h)
	l.setState(StateReady, nil)
	slog.Info("Model loaded", "model", l.name, "duration_ms", time.Since(start).Milliseconds())
	return &h, nil
}

// Preload loads the model eagerly, typically at startup.
func (l *Loader[T]) Preload(ctx context.Context) error {
	_, err := l.Get(ctx)
	return err
}

// Ready reports whether the handle is loaded.
func (l *Loader[T]) Ready() bool {
	return l.handle.Load() != nil
}

// State returns the current lifecycle state.
func (l *Loader[T]) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.state
}

// Err returns the error of the last failed attempt, if the loader is in StateFailed.
func (l *Loader[T]) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.lastErr
}

// Name returns the model name.
func (l *Loader[T]) Name() string {
	return l.name
}

// Pending returns the number of callers currently waiting for a load.
func (l *Loader[T]) Pending() int {
	return int(l.pending.Load())
}

func (l *Loader[T]) setState(s State, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = s
	l.lastErr = err
}

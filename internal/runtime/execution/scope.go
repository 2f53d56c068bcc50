package execution

import (
	"context"
	"sync"
)

type scopeKey struct{}

// taskScope ties a running task to the worker slot it holds.
type taskScope struct {
	executor *Executor

	mu   sync.Mutex
	held bool
}

func (s *taskScope) acquire() {
	// Acquire with a background context only fails on a cancelled context.
	_ = s.executor.slots.Acquire(context.Background(), 1)
	s.mu.Lock()
	s.held = true
	s.mu.Unlock()
}

// release gives the slot back and reports whether one was held.
func (s *taskScope) release() bool {
	s.mu.Lock()
	held := s.held
	s.held = false
	s.mu.Unlock()
	if held {
		s.executor.slots.Release(1)
	}
	return held
}

func withScope(ctx context.Context, s *taskScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func scopeFrom(ctx context.Context) *taskScope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*taskScope)
	return s
}

// WithExecutor binds e into ctx so code running under it can spawn sub-tasks
// through FromContext.
func WithExecutor(ctx context.Context, e *Executor) context.Context {
	return withScope(ctx, &taskScope{executor: e})
}

// FromContext returns the executor that is running the current task, if any.
func FromContext(ctx context.Context) (*Executor, bool) {
	s := scopeFrom(ctx)
	if s == nil || s.executor == nil {
		return nil, false
	}
	return s.executor, true
}

// Suspend runs a blocking operation from inside a task. The task's worker slot
// is handed back for the duration of fn so parked tasks never starve the pool,
// and re-acquired before Suspend returns. Outside a task Suspend just calls fn.
//
// Every blocking wait inside a task (channel operations, awaiting handles or
// replies) should go through Suspend.
func Suspend(ctx context.Context, fn func()) {
	s := scopeFrom(ctx)
	if s == nil || !s.release() {
		fn()
		return
	}
	defer s.acquire()
	fn()
}

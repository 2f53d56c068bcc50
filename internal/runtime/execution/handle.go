package execution

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/trust/internal/runtime/errors"
)

// Handle is the result of a task spawned with SpawnWithHandle. A panic in the
// task is kept and re-raised by Await instead of being logged by the executor.
type Handle[T any] struct {
	done   chan struct{}
	result T
	panic  *PanicError
}

// SpawnWithHandle schedules fn on e and returns a handle to its result.
func SpawnWithHandle[T any](e *Executor, fn func(ctx context.Context) T) (*Handle[T], error) {
	if e == nil {
		return nil, errspkg.ErrExecutorRequired
	}
	if fn == nil {
		return nil, errspkg.ErrTaskRequired
	}
	h := &Handle[T]{done: make(chan struct{})}
	err := e.spawn(func(ctx context.Context) {
		h.result = fn(ctx)
	}, func(perr *PanicError) {
		h.panic = perr
		close(h.done)
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Done is closed once the task has returned or panicked.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Await waits for the task and returns its result. If the task panicked,
// Await panics with the captured *PanicError. When called from inside a task,
// pass the task's context so the worker slot is released while waiting.
func (h *Handle[T]) Await(ctx context.Context) (T, error) {
	var zero T
	var cancelled bool
	Suspend(ctx, func() {
		select {
		case <-h.done:
		case <-ctx.Done():
			cancelled = true
		}
	})
	if cancelled {
		return zero, ctx.Err()
	}
	if h.panic != nil {
		panic(h.panic)
	}
	return h.result, nil
}

// SpawnAwait spawns fn on e and waits for it. Unlike Await it reports a panic
// as an error wrapping ErrSpawnedTaskPanicked and the *PanicError.
func SpawnAwait[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) T) (T, error) {
	var zero T
	h, err := SpawnWithHandle(e, fn)
	if err != nil {
		return zero, err
	}
	var result T
	if perr := Catch(func() { result, err = h.Await(ctx) }); perr != nil {
		return zero, fmt.Errorf("%w: %w", errspkg.ErrSpawnedTaskPanicked, perr)
	}
	return result, err
}

// Run executes fn on the calling goroutine with e bound into its context, so
// fn can reach the executor through FromContext. Run returns as soon as fn
// does, whether or not tasks spawned by fn are still running. A panic in fn
// propagates to the caller.
func Run[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) T) T {
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(WithExecutor(ctx, e))
}

package execution

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	errspkg "github.com/drblury/trust/internal/runtime/errors"
	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
)

// Task is a unit of work scheduled on an Executor. The context carries the
// task's worker slot; pass it to Suspend around blocking calls.
type Task func(ctx context.Context)

// ExecutorBuilder configures a new Executor.
type ExecutorBuilder struct {
	// ID identifies the executor. A zero ID is replaced by a generated one.
	ID ExecutorID
	// PoolSize is the number of tasks allowed to run at once. Zero means
	// runtime.GOMAXPROCS(0).
	PoolSize int
	// NamePrefix labels the executor's log entries. Defaults to the id.
	NamePrefix string
}

// NewExecutorBuilder returns a builder for id with default settings.
func NewExecutorBuilder(id ExecutorID) ExecutorBuilder {
	return ExecutorBuilder{ID: id}
}

// Validate reports invalid builder settings.
func (b ExecutorBuilder) Validate() error {
	var errs []error
	if b.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("executor: pool size cannot be negative, got %d", b.PoolSize))
	}
	return errors.Join(errs...)
}

func (b ExecutorBuilder) withDefaults() ExecutorBuilder {
	if b.ID == (ExecutorID{}) {
		b.ID = NewExecutorID()
	}
	if b.PoolSize == 0 {
		b.PoolSize = runtime.GOMAXPROCS(0)
	}
	if b.NamePrefix == "" {
		b.NamePrefix = b.ID.String()
	}
	return b
}

// Option customises executors and registries.
type Option func(*options)

type options struct {
	logger  loggingpkg.ServiceLogger
	metrics *metricspkg.Registry
}

// WithLogger sets the logger used for task panics and lifecycle events.
func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(o *options) { o.logger = log }
}

// WithMetrics sets the metrics registry executors report to.
func WithMetrics(reg *metricspkg.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = loggingpkg.OrDefault(o.logger)
	o.metrics = metricspkg.OrDefault(o.metrics)
	return o
}

// Executor schedules tasks onto a fixed number of worker slots. Each task runs
// on its own goroutine but only PoolSize of them make progress at a time;
// a task blocked inside Suspend does not count against the pool.
//
// A panic in a task spawned with Spawn is recovered, counted and logged; it
// never reaches other tasks. *Executor is a shared handle: every copy of the
// pointer refers to the same pool and counters.
type Executor struct {
	id       ExecutorID
	name     string
	poolSize int
	slots    *semaphore.Weighted
	logger   loggingpkg.ServiceLogger
	metrics  *executorMetrics

	spawned   atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor creates an unregistered executor. Use Register to make it
// reachable through the process-wide registry.
func NewExecutor(builder ExecutorBuilder, opts ...Option) (*Executor, error) {
	if err := builder.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return newExecutor(builder.withDefaults(), o)
}

func newExecutor(b ExecutorBuilder, o options) (*Executor, error) {
	m, err := newExecutorMetrics(o.metrics, b.ID)
	if err != nil {
		return nil, fmt.Errorf("executor %s: %w", b.ID, err)
	}
	e := &Executor{
		id:       b.ID,
		name:     b.NamePrefix,
		poolSize: b.PoolSize,
		slots:    semaphore.NewWeighted(int64(b.PoolSize)),
		logger:   o.logger.With(loggingpkg.LogFields{"executor": b.NamePrefix}),
		metrics:  m,
	}
	m.poolSize.Set(float64(b.PoolSize))
	e.logger.Debug("Executor created", loggingpkg.LogFields{"pool_size": b.PoolSize})
	return e, nil
}

// ID returns the executor id.
func (e *Executor) ID() ExecutorID { return e.id }

// Name returns the builder NamePrefix, which is the id unless set.
func (e *Executor) Name() string { return e.name }

func (e *Executor) String() string {
	return fmt.Sprintf("Executor(%s)", e.id)
}

// Spawn schedules task for execution and returns immediately. It fails only
// when the executor has been shut down.
func (e *Executor) Spawn(task Task) error {
	if task == nil {
		return errspkg.ErrTaskRequired
	}
	return e.spawn(task, nil)
}

func (e *Executor) spawn(task Task, done func(*PanicError)) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return &SpawnError{ExecutorID: e.id, Err: errspkg.ErrExecutorShutdown}
	}
	e.wg.Add(1)
	e.spawned.Add(1)
	e.metrics.spawned.Inc()
	e.mu.RUnlock()

	go e.execute(task, done)
	return nil
}

func (e *Executor) execute(task Task, done func(*PanicError)) {
	defer e.wg.Done()

	scope := &taskScope{executor: e}
	ctx := withScope(context.Background(), scope)
	scope.acquire()

	var perr *PanicError
	defer func() {
		scope.release()
		if perr != nil {
			e.panicked.Add(1)
			e.metrics.panicked.Inc()
			if done == nil {
				e.logger.Error("Task panicked", perr, loggingpkg.LogFields{"stack": string(perr.Stack)})
			}
		}
		e.completed.Add(1)
		e.metrics.completed.Inc()
		if done != nil {
			done(perr)
		}
	}()

	perr = Catch(func() { task(ctx) })
}

// Shutdown stops the executor from accepting new tasks and waits for the
// active ones to finish or ctx to be done.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	alreadyClosed := e.closed
	e.closed = true
	e.mu.Unlock()

	if !alreadyClosed {
		e.logger.Info("Executor shutting down", loggingpkg.LogFields{"active_tasks": e.ActiveTaskCount()})
	}

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdown reports whether Shutdown has been called.
func (e *Executor) IsShutdown() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// SpawnedTaskCount returns the number of tasks successfully scheduled.
func (e *Executor) SpawnedTaskCount() uint64 { return e.spawned.Load() }

// CompletedTaskCount returns the number of tasks that finished, including
// those that panicked.
func (e *Executor) CompletedTaskCount() uint64 { return e.completed.Load() }

// PanickedTaskCount returns the number of tasks that panicked.
func (e *Executor) PanickedTaskCount() uint64 { return e.panicked.Load() }

// ActiveTaskCount returns spawned minus completed.
func (e *Executor) ActiveTaskCount() uint64 {
	completed := e.completed.Load()
	spawned := e.spawned.Load()
	if completed > spawned {
		return 0
	}
	return spawned - completed
}

// ThreadPoolSize returns the number of worker slots.
func (e *Executor) ThreadPoolSize() int { return e.poolSize }

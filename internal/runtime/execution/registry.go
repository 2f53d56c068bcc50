package execution

import (
	"slices"
	"sync"

	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
)

// Registry is a set of executors keyed by id. Registered executors live for
// the lifetime of the registry; an id can only be registered once.
type Registry struct {
	mu        sync.RWMutex
	executors map[ExecutorID]*Executor

	globalOnce sync.Once
	global     *Executor
	globalErr  error

	opts options
}

// NewRegistry creates an empty registry. Options apply to every executor it
// creates, including the global one.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		executors: make(map[ExecutorID]*Executor),
		opts:      buildOptions(opts),
	}
}

// DefaultRegistry is the process-wide registry used by the package-level
// functions.
var DefaultRegistry = NewRegistry()

// Register creates an executor from builder and stores it under builder.ID.
// It returns *ExecutorAlreadyRegisteredError when the id is taken, leaving the
// existing executor untouched. GlobalExecutorID is always taken.
func (r *Registry) Register(builder ExecutorBuilder) (*Executor, error) {
	if err := builder.Validate(); err != nil {
		return nil, err
	}
	builder = builder.withDefaults()
	if builder.ID == GlobalExecutorID {
		return nil, &ExecutorAlreadyRegisteredError{ID: builder.ID}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[builder.ID]; exists {
		return nil, &ExecutorAlreadyRegisteredError{ID: builder.ID}
	}
	e, err := newExecutor(builder, r.opts)
	if err != nil {
		return nil, err
	}
	r.executors[builder.ID] = e
	r.opts.logger.Info("Executor registered", loggingpkg.LogFields{
		"executor_id": builder.ID.String(),
		"pool_size":   builder.PoolSize,
	})
	return e, nil
}

// Executor looks up an executor. GlobalExecutorID resolves to GlobalExecutor.
func (r *Registry) Executor(id ExecutorID) (*Executor, bool) {
	if id == GlobalExecutorID {
		return r.GlobalExecutor(), true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[id]
	return e, ok
}

// GlobalExecutor returns the registry's global executor, creating it on first
// use with a pool of runtime.GOMAXPROCS(0) slots.
func (r *Registry) GlobalExecutor() *Executor {
	r.globalOnce.Do(func() {
		r.global, r.globalErr = newExecutor(ExecutorBuilder{
			ID:         GlobalExecutorID,
			NamePrefix: "global",
		}.withDefaults(), r.opts)
	})
	if r.globalErr != nil {
		panic(r.globalErr)
	}
	return r.global
}

// ExecutorIDs returns the ids of the registered executors in ascending order.
// The global executor is not part of the result.
func (r *Registry) ExecutorIDs() []ExecutorID {
	r.mu.RLock()
	ids := make([]ExecutorID, 0, len(r.executors))
	for id := range r.executors {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.SortFunc(ids, ExecutorID.Compare)
	return ids
}

// SpawnedTaskCount sums the spawned tasks of every executor, global included.
func (r *Registry) SpawnedTaskCount() uint64 {
	var total uint64
	for _, e := range r.all() {
		total += e.SpawnedTaskCount()
	}
	return total
}

// ThreadPoolSizes maps every executor id, global included, to its pool size.
func (r *Registry) ThreadPoolSizes() map[ExecutorID]int {
	sizes := make(map[ExecutorID]int)
	for _, e := range r.all() {
		sizes[e.ID()] = e.ThreadPoolSize()
	}
	return sizes
}

func (r *Registry) all() []*Executor {
	executors := []*Executor{r.GlobalExecutor()}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.executors {
		executors = append(executors, e)
	}
	return executors
}

// Metrics returns the metrics registry executors of r report to.
func (r *Registry) Metrics() *metricspkg.Registry { return r.opts.metrics }

// Register registers an executor in DefaultRegistry.
func Register(builder ExecutorBuilder) (*Executor, error) {
	return DefaultRegistry.Register(builder)
}

// LookupExecutor returns a registered executor from DefaultRegistry.
func LookupExecutor(id ExecutorID) (*Executor, bool) {
	return DefaultRegistry.Executor(id)
}

// GlobalExecutor returns the global executor of DefaultRegistry.
func GlobalExecutor() *Executor {
	return DefaultRegistry.GlobalExecutor()
}

// ExecutorIDs returns the ids registered in DefaultRegistry, global excluded.
func ExecutorIDs() []ExecutorID {
	return DefaultRegistry.ExecutorIDs()
}

// SpawnedTaskCount sums spawned tasks across DefaultRegistry.
func SpawnedTaskCount() uint64 {
	return DefaultRegistry.SpawnedTaskCount()
}

// ThreadPoolSizes returns the pool sizes of the executors in DefaultRegistry.
func ThreadPoolSizes() map[ExecutorID]int {
	return DefaultRegistry.ThreadPoolSizes()
}

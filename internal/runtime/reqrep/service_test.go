package reqrep

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/trust/internal/runtime/errors"
	"github.com/drblury/trust/internal/runtime/execution"
	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
)

type counterRequest int

const (
	counterInc counterRequest = iota
	counterGet
	counterPanic
)

type counter struct {
	n int
}

func (c *counter) Process(_ context.Context, req counterRequest) int {
	switch req {
	case counterInc:
		c.n++
	case counterPanic:
		panic("counter: panic requested")
	}
	return c.n
}

type recoveringCounter struct {
	counter
	panics atomic.Int32
}

func (c *recoveringCounter) Panicked(*execution.PanicError) {
	c.panics.Add(1)
}

type lifecycleProcessor struct {
	inits    *atomic.Int32
	destroys *atomic.Int32
}

func (p lifecycleProcessor) Process(_ context.Context, req int) int { return req * 2 }
func (p lifecycleProcessor) Clone() Processor[int, int]             { return p }
func (p lifecycleProcessor) Init(context.Context)                   { p.inits.Add(1) }
func (p lifecycleProcessor) Destroy()                               { p.destroys.Add(1) }

type serviceFixture struct {
	executor *execution.Executor
	metrics  *metricspkg.Registry
}

func newServiceFixture(t *testing.T, poolSize int) serviceFixture {
	t.Helper()
	reg := metricspkg.NewPrometheusRegistry()
	e, err := execution.NewExecutor(execution.ExecutorBuilder{PoolSize: poolSize},
		execution.WithLogger(loggingpkg.Nop()), execution.WithMetrics(reg))
	require.NoError(t, err)
	return serviceFixture{executor: e, metrics: reg}
}

func (f serviceFixture) config() Config {
	return Config{ID: NewID(), Logger: loggingpkg.Nop(), Metrics: f.metrics}
}

func (f serviceFixture) reader() Metrics { return NewMetrics(f.metrics) }

func TestCounterServiceEndToEnd(t *testing.T) {
	f := newServiceFixture(t, 4)
	cfg := f.config()
	client, err := StartService[counterRequest, int](cfg, &counter{}, f.executor)
	require.NoError(t, err)
	defer client.Close()

	handles := make([]*execution.Handle[error], 0, 10)
	for range 10 {
		c := client.Clone()
		h, err := execution.SpawnWithHandle(f.executor, func(ctx context.Context) error {
			defer c.Close()
			_, err := c.SendRecv(ctx, counterInc)
			return err
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		err, awaitErr := h.Await(context.Background())
		require.NoError(t, awaitErr)
		require.NoError(t, err)
	}

	n, err := client.SendRecv(context.Background(), counterGet)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, uint64(11), f.reader().RequestSendCount(cfg.ID))
	assert.Equal(t, uint64(11), f.reader().ProcessTimerSampleCount(cfg.ID))
	assert.Equal(t, uint64(1), f.reader().ServiceInstanceCount(cfg.ID))
}

func TestPanickingProcessorTerminatesInstance(t *testing.T) {
	f := newServiceFixture(t, 2)
	cfg := f.config()
	client, err := StartService[counterRequest, int](cfg, &counter{}, f.executor)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SendRecv(context.Background(), counterPanic)
	require.ErrorIs(t, err, errspkg.ErrDisconnected)

	_, err = client.SendRecv(context.Background(), counterGet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errspkg.ErrDisconnected) || errors.Is(err, errspkg.ErrChannelDisconnected), "got %v", err)

	require.Eventually(t, func() bool {
		_, err := client.Send(context.Background(), counterGet)
		return errors.Is(err, errspkg.ErrChannelDisconnected)
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, uint64(1), f.reader().ProcessorPanicCount(cfg.ID))
	assert.Zero(t, f.reader().ServiceInstanceCount(cfg.ID))
	require.Eventually(t, func() bool { return f.executor.PanickedTaskCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecoveringProcessorKeepsServing(t *testing.T) {
	f := newServiceFixture(t, 2)
	cfg := f.config()
	p := &recoveringCounter{}
	client, err := StartService[counterRequest, int](cfg, p, f.executor)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.SendRecv(ctx, counterInc)
	require.NoError(t, err)
	_, err = client.SendRecv(ctx, counterPanic)
	require.ErrorIs(t, err, errspkg.ErrDisconnected)
	_, err = client.SendRecv(ctx, counterInc)
	require.NoError(t, err)

	n, err := client.SendRecv(ctx, counterGet)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(1), p.panics.Load())
	assert.Equal(t, uint64(1), f.reader().ProcessorPanicCount(cfg.ID))
	assert.Equal(t, uint64(1), f.reader().ServiceInstanceCount(cfg.ID))
	assert.Zero(t, f.executor.PanickedTaskCount())
}

func TestFireAndForgetIsSilent(t *testing.T) {
	f := newServiceFixture(t, 2)
	cfg := f.config()
	cfg.ChanBufSize = 4
	client, err := StartService[counterRequest, int](cfg, &counter{}, f.executor)
	require.NoError(t, err)
	defer client.Close()

	const n = 25
	for range n {
		rx, err := client.Send(context.Background(), counterInc)
		require.NoError(t, err)
		rx.Close()
	}

	got, err := client.SendRecv(context.Background(), counterGet)
	require.NoError(t, err)
	assert.Equal(t, n, got)
	assert.Zero(t, f.reader().ProcessorPanicCount(cfg.ID))
	assert.Zero(t, f.executor.PanickedTaskCount())
}

func TestMultipleInstancesDrainSharedBuffer(t *testing.T) {
	f := newServiceFixture(t, 4)
	cfg := f.config()
	cfg.Instances = 3
	cfg.ChanBufSize = 8
	double := ProcessorFunc[int, int](func(_ context.Context, req int) int { return req * 2 })
	client, err := StartService[int, int](cfg, double, f.executor)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return f.reader().ServiceInstanceCount(cfg.ID) == 3 }, time.Second, 5*time.Millisecond)

	var (
		mu      sync.Mutex
		replies []int
		wg      sync.WaitGroup
	)
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := client.SendRecv(context.Background(), i)
			assert.NoError(t, err)
			mu.Lock()
			replies = append(replies, rep)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Replies arrive in no particular order across instances.
	sort.Ints(replies)
	want := make([]int, 30)
	for i := range want {
		want[i] = i * 2
	}
	assert.Equal(t, want, replies)
}

func TestSingleInstanceIsFIFO(t *testing.T) {
	f := newServiceFixture(t, 1)
	cfg := f.config()
	cfg.ChanBufSize = 16
	var seen []int
	record := ProcessorFunc[int, int](func(_ context.Context, req int) int {
		seen = append(seen, req)
		return req
	})
	client, err := StartService[int, int](cfg, record, f.executor)
	require.NoError(t, err)
	defer client.Close()

	receivers := make([]*ReplyReceiver[int], 0, 10)
	for i := range 10 {
		rx, err := client.Send(context.Background(), i)
		require.NoError(t, err)
		receivers = append(receivers, rx)
	}
	for i, rx := range receivers {
		rep, err := rx.Recv(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, rep)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestServiceStopsWhenClientsClose(t *testing.T) {
	f := newServiceFixture(t, 2)
	cfg := f.config()
	cfg.Instances = 2
	var inits, destroys atomic.Int32
	client, err := StartService[int, int](cfg, lifecycleProcessor{inits: &inits, destroys: &destroys}, f.executor)
	require.NoError(t, err)

	clone := client.Clone()
	rep, err := clone.SendRecv(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, rep)

	client.Close()
	clone.Close()

	require.Eventually(t, func() bool { return f.executor.ActiveTaskCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), inits.Load())
	assert.Equal(t, int32(2), destroys.Load())
	assert.Zero(t, f.reader().ServiceInstanceCount(cfg.ID))
	assert.Zero(t, f.reader().ProcessorPanicCount(cfg.ID))
	assert.Zero(t, f.executor.PanickedTaskCount())

	_, err = clone.Send(context.Background(), 1)
	assert.ErrorIs(t, err, errspkg.ErrChannelDisconnected)
}

func TestPoolOfOneHostsSeveralServices(t *testing.T) {
	f := newServiceFixture(t, 1)

	clients := make([]*Client[int, int], 0, 3)
	for i := range 3 {
		cfg := f.config()
		offset := i * 100
		add := ProcessorFunc[int, int](func(_ context.Context, req int) int { return req + offset })
		client, err := StartService[int, int](cfg, add, f.executor)
		require.NoError(t, err)
		defer client.Close()
		clients = append(clients, client)
	}

	for i, client := range clients {
		rep, err := client.SendRecv(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, i*100+1, rep)
	}
}

func TestStartServiceValidation(t *testing.T) {
	f := newServiceFixture(t, 1)
	p := &counter{}

	_, err := StartService[counterRequest, int](f.config(), nil, f.executor)
	assert.ErrorIs(t, err, errspkg.ErrProcessorRequired)

	_, err = StartService[counterRequest, int](f.config(), p, nil)
	assert.ErrorIs(t, err, errspkg.ErrExecutorRequired)

	cfg := f.config()
	cfg.Instances = 2
	_, err = StartService[counterRequest, int](cfg, p, f.executor)
	assert.ErrorIs(t, err, errspkg.ErrProcessorNotCloneable)

	cfg = f.config()
	cfg.ChanBufSize = -1
	cfg.Instances = -1
	cfg.TimerBuckets = metricspkg.DurationBuckets{time.Second, time.Millisecond}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel buffer size")
	assert.Contains(t, err.Error(), "instances")
	assert.Contains(t, err.Error(), "timer buckets")
}

func TestStartServiceOnShutdownExecutor(t *testing.T) {
	f := newServiceFixture(t, 1)
	require.NoError(t, f.executor.Shutdown(context.Background()))

	_, err := StartService[counterRequest, int](f.config(), &counter{}, f.executor)
	assert.ErrorIs(t, err, errspkg.ErrExecutorShutdown)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.False(t, cfg.ID.IsZero())
	assert.Equal(t, 1, cfg.ChanBufSize)
	assert.Equal(t, 1, cfg.Instances)
	assert.Equal(t, metricspkg.DefaultTimerBuckets, cfg.TimerBuckets)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Metrics)
}

func TestMetricsMaps(t *testing.T) {
	f := newServiceFixture(t, 2)
	cfgA, cfgB := f.config(), f.config()
	echo := ProcessorFunc[int, int](func(_ context.Context, req int) int { return req })

	a, err := StartService[int, int](cfgA, echo, f.executor)
	require.NoError(t, err)
	defer a.Close()
	b, err := StartService[int, int](cfgB, echo, f.executor)
	require.NoError(t, err)
	defer b.Close()

	for range 3 {
		_, err := a.SendRecv(context.Background(), 1)
		require.NoError(t, err)
	}
	_, err = b.SendRecv(context.Background(), 1)
	require.NoError(t, err)

	counts := f.reader().RequestSendCounts()
	assert.Equal(t, uint64(3), counts[cfgA.ID])
	assert.Equal(t, uint64(1), counts[cfgB.ID])
	assert.Zero(t, f.reader().ProcessorPanicCounts()[cfgA.ID])
	assert.Len(t, f.reader().ServiceInstanceCounts(), 2)

	mfs, err := f.reader().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(mfs))
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, RequestSendCounterName)
	assert.Contains(t, names, ProcessTimerHistogramName)
}

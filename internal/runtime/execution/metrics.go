package execution

import (
	"github.com/prometheus/client_golang/prometheus"

	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
)

const metricsSubsystem = "executor"

// Metric names as exposed by Prometheus.
const (
	SpawnedTaskCounterName   = metricspkg.Namespace + "_" + metricsSubsystem + "_spawned_tasks_total"
	CompletedTaskCounterName = metricspkg.Namespace + "_" + metricsSubsystem + "_completed_tasks_total"
	PanickedTaskCounterName  = metricspkg.Namespace + "_" + metricsSubsystem + "_panicked_tasks_total"
	ThreadPoolSizeGaugeName  = metricspkg.Namespace + "_" + metricsSubsystem + "_thread_pool_size"

	// ExecutorIDLabel carries the executor id on every executor series.
	ExecutorIDLabel = "executor_id"
)

type executorMetrics struct {
	spawned   prometheus.Counter
	completed prometheus.Counter
	panicked  prometheus.Counter
	poolSize  prometheus.Gauge
}

func newExecutorMetrics(reg *metricspkg.Registry, id ExecutorID) (*executorMetrics, error) {
	labels := []string{ExecutorIDLabel}
	spawned, err := reg.RegisterCounterVec(metricsSubsystem, "spawned_tasks_total", "Number of tasks spawned on the executor.", labels)
	if err != nil {
		return nil, err
	}
	completed, err := reg.RegisterCounterVec(metricsSubsystem, "completed_tasks_total", "Number of tasks that finished, including panicked ones.", labels)
	if err != nil {
		return nil, err
	}
	panicked, err := reg.RegisterCounterVec(metricsSubsystem, "panicked_tasks_total", "Number of tasks that panicked.", labels)
	if err != nil {
		return nil, err
	}
	poolSize, err := reg.RegisterGaugeVec(metricsSubsystem, "thread_pool_size", "Number of worker slots of the executor.", labels)
	if err != nil {
		return nil, err
	}
	value := id.String()
	return &executorMetrics{
		spawned:   spawned.WithLabelValues(value),
		completed: completed.WithLabelValues(value),
		panicked:  panicked.WithLabelValues(value),
		poolSize:  poolSize.WithLabelValues(value),
	}, nil
}

package reqrep

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
)

const metricsSubsystem = "reqrep"

// Metric names as exposed by Prometheus.
const (
	ServiceInstanceGaugeName  = metricspkg.Namespace + "_" + metricsSubsystem + "_service_instances"
	RequestSendCounterName    = metricspkg.Namespace + "_" + metricsSubsystem + "_requests_sent_total"
	ProcessorPanicCounterName = metricspkg.Namespace + "_" + metricsSubsystem + "_processor_panics_total"
	ProcessTimerHistogramName = metricspkg.Namespace + "_" + metricsSubsystem + "_process_seconds"

	// ReqRepIDLabel carries the service id on every request/reply series.
	ReqRepIDLabel = "reqrep_id"
)

type serviceMetrics struct {
	instances prometheus.Gauge
	sent      prometheus.Counter
	panics    prometheus.Counter
	timer     prometheus.Observer
}

func newServiceMetrics(reg *metricspkg.Registry, id ID, buckets metricspkg.DurationBuckets) (*serviceMetrics, error) {
	labels := []string{ReqRepIDLabel}
	instances, err := reg.RegisterGaugeVec(metricsSubsystem, "service_instances", "Number of running backend instances of a service.", labels)
	if err != nil {
		return nil, err
	}
	sent, err := reg.RegisterCounterVec(metricsSubsystem, "requests_sent_total", "Number of requests pushed onto a service channel.", labels)
	if err != nil {
		return nil, err
	}
	panics, err := reg.RegisterCounterVec(metricsSubsystem, "processor_panics_total", "Number of panics raised by a service processor.", labels)
	if err != nil {
		return nil, err
	}
	if len(buckets) == 0 {
		buckets = metricspkg.DefaultTimerBuckets
	}
	timer, err := reg.RegisterHistogram(metricsSubsystem, "process_seconds", "Time spent processing a request.",
		prometheus.Labels{ReqRepIDLabel: id.String()}, buckets)
	if err != nil {
		return nil, err
	}
	value := id.String()
	return &serviceMetrics{
		instances: instances.WithLabelValues(value),
		sent:      sent.WithLabelValues(value),
		panics:    panics.WithLabelValues(value),
		timer:     timer,
	}, nil
}

// Metrics reads the request/reply series out of a metrics registry.
type Metrics struct {
	reg *metricspkg.Registry
}

// NewMetrics returns a reader over reg, or over the default registry when reg
// is nil.
func NewMetrics(reg *metricspkg.Registry) Metrics {
	return Metrics{reg: metricspkg.OrDefault(reg)}
}

// RequestSendCount returns how many requests were sent to the service.
func (m Metrics) RequestSendCount(id ID) uint64 {
	return m.reg.CounterValue(RequestSendCounterName, ReqRepIDLabel, id.String())
}

// ServiceInstanceCount returns how many backend instances of the service are
// running.
func (m Metrics) ServiceInstanceCount(id ID) uint64 {
	return uint64(m.reg.GaugeValue(ServiceInstanceGaugeName, ReqRepIDLabel, id.String()))
}

// ProcessorPanicCount returns how many times the service processor panicked.
func (m Metrics) ProcessorPanicCount(id ID) uint64 {
	return m.reg.CounterValue(ProcessorPanicCounterName, ReqRepIDLabel, id.String())
}

// ProcessTimerSampleCount returns how many requests the service timed.
func (m Metrics) ProcessTimerSampleCount(id ID) uint64 {
	return m.reg.HistogramSampleCount(ProcessTimerHistogramName, ReqRepIDLabel, id.String())
}

// RequestSendCounts returns the send count of every known service.
func (m Metrics) RequestSendCounts() map[ID]uint64 {
	return m.counts(RequestSendCounterName, func(id ID) uint64 { return m.RequestSendCount(id) })
}

// ServiceInstanceCounts returns the instance count of every known service.
func (m Metrics) ServiceInstanceCounts() map[ID]uint64 {
	return m.counts(ServiceInstanceGaugeName, func(id ID) uint64 { return m.ServiceInstanceCount(id) })
}

// ProcessorPanicCounts returns the panic count of every known service.
func (m Metrics) ProcessorPanicCounts() map[ID]uint64 {
	return m.counts(ProcessorPanicCounterName, func(id ID) uint64 { return m.ProcessorPanicCount(id) })
}

func (m Metrics) counts(name string, value func(ID) uint64) map[ID]uint64 {
	out := make(map[ID]uint64)
	for _, raw := range m.reg.LabelValues(name, ReqRepIDLabel) {
		id, err := ParseID(raw)
		if err != nil {
			continue
		}
		out[id] = value(id)
	}
	return out
}

// Gather returns the request/reply metric families.
func (m Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.reg.GatherByName(ServiceInstanceGaugeName, RequestSendCounterName, ProcessorPanicCounterName, ProcessTimerHistogramName)
}

// RequestSendCount reads from the default metrics registry.
func RequestSendCount(id ID) uint64 { return NewMetrics(nil).RequestSendCount(id) }

// ServiceInstanceCount reads from the default metrics registry.
func ServiceInstanceCount(id ID) uint64 { return NewMetrics(nil).ServiceInstanceCount(id) }

// ProcessorPanicCount reads from the default metrics registry.
func ProcessorPanicCount(id ID) uint64 { return NewMetrics(nil).ProcessorPanicCount(id) }

// ProcessTimerSampleCount reads from the default metrics registry.
func ProcessTimerSampleCount(id ID) uint64 { return NewMetrics(nil).ProcessTimerSampleCount(id) }

// GatherMetrics returns the request/reply metric families of the default
// registry.
func GatherMetrics() ([]*dto.MetricFamily, error) { return NewMetrics(nil).Gather() }

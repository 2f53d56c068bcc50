// Package metrics is the registration and gathering layer shared by executors
// and reqrep services. It wraps a Prometheus registry so collectors can be
// registered once per process and looked up again by metric name and label.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Namespace prefixes every metric registered through this package.
const Namespace = "trust"

// Registry registers collectors and gathers metric families by name.
type Registry struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry backed by prometheus.DefaultRegisterer.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return defaultRegistry
}

// NewPrometheusRegistry returns a Registry over a fresh prometheus.Registry.
// Tests use it to keep counters isolated.
func NewPrometheusRegistry() *Registry {
	reg := prometheus.NewRegistry()
	return New(reg, reg)
}

// New creates a registry. A nil registerer or gatherer falls back to the
// Prometheus defaults.
func New(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Registry {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Registry{registerer: registerer, gatherer: gatherer}
}

// OrDefault returns r, or Default when r is nil.
func OrDefault(r *Registry) *Registry {
	if r == nil {
		return Default()
	}
	return r
}

// RegisterCounterVec registers a counter vec, returning the already registered
// collector when an identical one exists.
func (r *Registry) RegisterCounterVec(subsystem, name, help string, labels []string) (*prometheus.CounterVec, error) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	existing, err := r.register(c)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		vec, ok := existing.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("metrics: %s_%s is registered with a different type", subsystem, name)
		}
		return vec, nil
	}
	return c, nil
}

// RegisterGaugeVec registers a gauge vec, returning the already registered
// collector when an identical one exists.
func (r *Registry) RegisterGaugeVec(subsystem, name, help string, labels []string) (*prometheus.GaugeVec, error) {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	existing, err := r.register(g)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		vec, ok := existing.(*prometheus.GaugeVec)
		if !ok {
			return nil, fmt.Errorf("metrics: %s_%s is registered with a different type", subsystem, name)
		}
		return vec, nil
	}
	return g, nil
}

// RegisterHistogram registers a histogram whose series is identified by the
// supplied const labels. Several histograms may share a name as long as their
// const label values differ, which lets each series carry its own buckets.
func (r *Registry) RegisterHistogram(subsystem, name, help string, constLabels prometheus.Labels, buckets DurationBuckets) (prometheus.Histogram, error) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: constLabels,
		Buckets:     buckets.Seconds(),
	})
	existing, err := r.register(h)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		hist, ok := existing.(prometheus.Histogram)
		if !ok {
			return nil, fmt.Errorf("metrics: %s_%s is registered with a different type", subsystem, name)
		}
		return hist, nil
	}
	return h, nil
}

func (r *Registry) register(c prometheus.Collector) (prometheus.Collector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return nil, nil
}

// Registerer exposes the underlying registerer for collectors built elsewhere,
// such as Watermill's router metrics.
func (r *Registry) Registerer() prometheus.Registerer { return r.registerer }

// Gather returns every metric family known to the registry.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.gatherer.Gather()
}

// GatherByName returns the metric families whose fully-qualified names are
// listed, in the order the gatherer reports them.
func (r *Registry) GatherByName(names ...string) ([]*dto.MetricFamily, error) {
	mfs, err := r.gatherer.Gather()
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}
	out := make([]*dto.MetricFamily, 0, len(names))
	for _, mf := range mfs {
		if _, ok := wanted[mf.GetName()]; ok {
			out = append(out, mf)
		}
	}
	return out, nil
}

// CounterValue returns the value of the counter series carrying label=value.
func (r *Registry) CounterValue(name, label, value string) uint64 {
	m := r.find(name, label, value)
	if m == nil || m.GetCounter() == nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}

// GaugeValue returns the value of the gauge series carrying label=value.
func (r *Registry) GaugeValue(name, label, value string) float64 {
	m := r.find(name, label, value)
	if m == nil || m.GetGauge() == nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// HistogramSampleCount returns the observation count of the histogram series
// carrying label=value.
func (r *Registry) HistogramSampleCount(name, label, value string) uint64 {
	m := r.find(name, label, value)
	if m == nil || m.GetHistogram() == nil {
		return 0
	}
	return m.GetHistogram().GetSampleCount()
}

// LabelValues returns the value of label for every series of the named
// metric family, sorted.
func (r *Registry) LabelValues(name, label string) []string {
	mfs, err := r.GatherByName(name)
	if err != nil {
		return nil
	}
	var values []string
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if v, ok := labelValue(m, label); ok {
				values = append(values, v)
			}
		}
	}
	sort.Strings(values)
	return values
}

func (r *Registry) find(name, label, value string) *dto.Metric {
	mfs, err := r.GatherByName(name)
	if err != nil {
		return nil
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if v, ok := labelValue(m, label); ok && v == value {
				return m
			}
		}
	}
	return nil
}

func labelValue(m *dto.Metric, label string) (string, bool) {
	for _, pair := range m.GetLabel() {
		if pair.GetName() == label {
			return pair.GetValue(), true
		}
	}
	return "", false
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// DurationBuckets are histogram bucket upper bounds expressed as durations.
type DurationBuckets []time.Duration

// DefaultTimerBuckets is used when a service does not configure its own.
var DefaultTimerBuckets = DurationBuckets{
	50 * time.Microsecond,
	100 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// Validate checks that the buckets are non-empty, positive and strictly increasing.
func (b DurationBuckets) Validate() error {
	if len(b) == 0 {
		return errors.New("metrics: at least one bucket is required")
	}
	var errs []error
	for i, d := range b {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("metrics: bucket %d must be positive, got %s", i, d))
		}
		if i > 0 && d <= b[i-1] {
			errs = append(errs, fmt.Errorf("metrics: bucket %d (%s) must be greater than bucket %d (%s)", i, d, i-1, b[i-1]))
		}
	}
	return errors.Join(errs...)
}

// Seconds converts the buckets into Prometheus bucket bounds.
func (b DurationBuckets) Seconds() []float64 {
	if len(b) == 0 {
		return nil
	}
	out := make([]float64, len(b))
	for i, d := range b {
		out[i] = d.Seconds()
	}
	return out
}

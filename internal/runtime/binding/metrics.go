package binding

import (
	"github.com/prometheus/client_golang/prometheus"

	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
)

// Outcome label values of RequestCounterName.
const (
	OutcomeOK            = "ok"
	OutcomeFailed        = "failed"
	OutcomeUnprocessable = "unprocessable"
)

// RequestCounterName counts requests handled by bindings.
const RequestCounterName = metricspkg.Namespace + "_gateway_requests_total"

type bindingMetrics struct {
	requests *prometheus.CounterVec
}

func newBindingMetrics(reg *metricspkg.Registry) (*bindingMetrics, error) {
	requests, err := reg.RegisterCounterVec("gateway", "requests_total", "Number of requests handled by gateway bindings.", []string{"reqrep_id", "outcome"})
	if err != nil {
		return nil, err
	}
	return &bindingMetrics{requests: requests}, nil
}

func (m *bindingMetrics) observe(id string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case IsUnprocessable(err):
		outcome = OutcomeUnprocessable
	case err != nil:
		outcome = OutcomeFailed
	}
	m.requests.WithLabelValues(id, outcome).Inc()
}

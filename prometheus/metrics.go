package prometheus

import (
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/synapse-core/ipgate"
)

const (
	resolutionTotalName = "ipgate_resolution_total"
	decisionsTotalName  = "ipgate_decisions_total"
)

// PrometheusMetrics is a Prometheus-backed implementation of ipgate.Metrics.
type PrometheusMetrics struct {
	resolutionTotal *prom.CounterVec
	decisionsTotal  *prom.CounterVec
}

var _ ipgate.Metrics = (*PrometheusMetrics)(nil)

// WithMetrics returns an ipgate option that installs Prometheus-backed
// metrics using prom.DefaultRegisterer.
func WithMetrics() ipgate.Option {
	return withMetricsFactory(New)
}

// WithRegisterer returns an ipgate option that installs Prometheus-backed
// metrics using the provided registerer.
//
// If registerer is nil, prom.DefaultRegisterer is used.
func WithRegisterer(registerer prom.Registerer) ipgate.Option {
	return withMetricsFactory(func() (*PrometheusMetrics, error) {
		return NewWithRegisterer(registerer)
	})
}

func withMetricsFactory(factory func() (*PrometheusMetrics, error)) ipgate.Option {
	return ipgate.WithMetricsFactory(func() (ipgate.Metrics, error) {
		metrics, err := factory()
		if err != nil {
			return nil, err
		}
		return metrics, nil
	})
}

// New creates PrometheusMetrics and registers its collectors on
// prom.DefaultRegisterer.
func New() (*PrometheusMetrics, error) {
	return NewWithRegisterer(prom.DefaultRegisterer)
}

// NewWithRegisterer creates PrometheusMetrics and registers its collectors on
// the given registerer.
//
// If registerer is nil, prom.DefaultRegisterer is used. If the metrics are
// already registered, existing compatible collectors are reused.
func NewWithRegisterer(registerer prom.Registerer) (*PrometheusMetrics, error) {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}

	resolutionTotalCollector := prom.NewCounterVec(
		prom.CounterOpts{
			Name: resolutionTotalName,
			Help: "Client address resolutions by result (success, failure) and failure reason.",
		},
		[]string{"result", "reason"},
	)
	decisionsTotalCollector := prom.NewCounterVec(
		prom.CounterOpts{
			Name: decisionsTotalName,
			Help: "Access decisions by outcome (authorized, rejected).",
		},
		[]string{"outcome"},
	)

	resolutionTotal, err := registerCounterVec(registerer, resolutionTotalCollector, resolutionTotalName)
	if err != nil {
		return nil, err
	}

	decisionsTotal, err := registerCounterVec(registerer, decisionsTotalCollector, decisionsTotalName)
	if err != nil {
		return nil, err
	}

	return &PrometheusMetrics{
		resolutionTotal: resolutionTotal,
		decisionsTotal:  decisionsTotal,
	}, nil
}

func registerCounterVec(registerer prom.Registerer, collector *prom.CounterVec, metricName string) (*prom.CounterVec, error) {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prom.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(*prom.CounterVec)
			if ok {
				return existing, nil
			}
			return nil, fmt.Errorf("metric %q already registered with incompatible collector type %T", metricName, alreadyRegistered.ExistingCollector)
		}

		return nil, fmt.Errorf("register metric %q: %w", metricName, err)
	}

	return collector, nil
}

// RecordResolutionSuccess increments ipgate_resolution_total with
// result="success".
func (m *PrometheusMetrics) RecordResolutionSuccess() {
	m.resolutionTotal.WithLabelValues("success", "").Inc()
}

// RecordResolutionFailure increments ipgate_resolution_total with
// result="failure" for the provided reason.
func (m *PrometheusMetrics) RecordResolutionFailure(reason string) {
	m.resolutionTotal.WithLabelValues("failure", reason).Inc()
}

// RecordDecision increments ipgate_decisions_total for the provided outcome.
func (m *PrometheusMetrics) RecordDecision(outcome string) {
	m.decisionsTotal.WithLabelValues(outcome).Inc()
}

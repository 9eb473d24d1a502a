package prometheus

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/synapse-core/ipgate"
)

type mockMetrics struct {
	mu        sync.Mutex
	decisions map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		decisions: make(map[string]int),
	}
}

func (m *mockMetrics) RecordResolutionSuccess() {}

func (m *mockMetrics) RecordResolutionFailure(string) {}

func (m *mockMetrics) RecordDecision(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[outcome]++
}

func (m *mockMetrics) getDecisionCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decisions[outcome]
}

func newRequest(remoteAddr string, forwarded ...string) *http.Request {
	req := &http.Request{
		RemoteAddr: remoteAddr,
		Header:     make(http.Header),
	}
	for _, v := range forwarded {
		req.Header.Add("X-Forwarded-For", v)
	}
	return req
}

func TestWithMetrics_Option(t *testing.T) {
	filter, err := ipgate.New(
		ipgate.Allow("1.1.1.1"),
		WithMetrics(),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if decision := filter.Authorize(newRequest("1.1.1.1:12345")); !decision.Authorized() {
		t.Fatalf("Authorize() = %+v, want authorized", decision)
	}
}

func TestWithRegisterer_Option(t *testing.T) {
	registry := prom.NewRegistry()

	filter, err := ipgate.New(
		ipgate.TrustedProxyDepth(1),
		ipgate.Allow("203.0.113.7"),
		WithRegisterer(registry),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	filter.Authorize(newRequest("10.0.0.5:1", "203.0.113.7"))
	filter.Authorize(newRequest("10.0.0.5:1", "198.51.100.9"))
	filter.Authorize(newRequest("10.0.0.5:1"))
	filter.Authorize(newRequest("10.0.0.5:1", "bogus"))

	tests := []struct {
		metric string
		labels map[string]string
		want   float64
	}{
		{metric: resolutionTotalName, labels: map[string]string{"result": "success"}, want: 2},
		{metric: resolutionTotalName, labels: map[string]string{"result": "failure", "reason": ipgate.ReasonChainTooShort}, want: 1},
		{metric: resolutionTotalName, labels: map[string]string{"result": "failure", "reason": ipgate.ReasonUnparsableAddress}, want: 1},
		{metric: decisionsTotalName, labels: map[string]string{"outcome": ipgate.OutcomeAuthorized}, want: 1},
		{metric: decisionsTotalName, labels: map[string]string{"outcome": ipgate.OutcomeRejected}, want: 3},
	}

	for _, tt := range tests {
		if got := counterValue(registry, tt.metric, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.metric, tt.labels, got, tt.want)
		}
	}
}

func TestMetricsOptions_Precedence_LastWins(t *testing.T) {
	t.Run("custom metrics after prometheus option", func(t *testing.T) {
		registry := prom.NewRegistry()
		customMetrics := newMockMetrics()

		filter, err := ipgate.New(
			ipgate.Allow("1.1.1.1"),
			WithRegisterer(registry),
			ipgate.WithMetrics(customMetrics),
		)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		filter.Authorize(newRequest("1.1.1.1:12345"))

		if got := customMetrics.getDecisionCount(ipgate.OutcomeAuthorized); got != 1 {
			t.Fatalf("custom metrics decision count = %d, want 1", got)
		}
		if got := counterValue(registry, decisionsTotalName, map[string]string{"outcome": ipgate.OutcomeAuthorized}); got != 0 {
			t.Fatalf("prometheus counter = %v, want 0", got)
		}
	})

	t.Run("prometheus option after custom metrics", func(t *testing.T) {
		registry := prom.NewRegistry()
		customMetrics := newMockMetrics()

		filter, err := ipgate.New(
			ipgate.Allow("1.1.1.1"),
			ipgate.WithMetrics(customMetrics),
			WithRegisterer(registry),
		)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		filter.Authorize(newRequest("1.1.1.1:12345"))

		if got := customMetrics.getDecisionCount(ipgate.OutcomeAuthorized); got != 0 {
			t.Fatalf("custom metrics decision count = %d, want 0", got)
		}
		if got := counterValue(registry, decisionsTotalName, map[string]string{"outcome": ipgate.OutcomeAuthorized}); got != 1 {
			t.Fatalf("prometheus counter = %v, want 1", got)
		}
	})
}

func TestWithRegisterer_NotRegisteredOnInvalidConfig(t *testing.T) {
	registry := prom.NewRegistry()

	_, err := ipgate.New(
		ipgate.TrustedProxyDepth(-1),
		WithRegisterer(registry),
	)
	if err == nil {
		t.Fatal("New() error = nil, want error")
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 0 {
		t.Fatalf("registered families = %d, want 0", len(families))
	}
}

func TestNewWithRegisterer_Creation(t *testing.T) {
	registry := prom.NewRegistry()
	metricsA, err := NewWithRegisterer(registry)
	if err != nil {
		t.Fatalf("NewWithRegisterer() error = %v", err)
	}

	metricsB, err := NewWithRegisterer(registry)
	if err != nil {
		t.Fatalf("second NewWithRegisterer() error = %v", err)
	}

	if metricsA == nil || metricsB == nil {
		t.Fatal("expected non-nil prometheus metrics instances")
	}

	metricsA.RecordDecision(ipgate.OutcomeRejected)
	metricsB.RecordDecision(ipgate.OutcomeRejected)

	if got := counterValue(registry, decisionsTotalName, map[string]string{"outcome": ipgate.OutcomeRejected}); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

type failingRegisterer struct {
	err error
}

func (r failingRegisterer) Register(prom.Collector) error {
	return r.err
}

func (r failingRegisterer) MustRegister(...prom.Collector) {}

func (r failingRegisterer) Unregister(prom.Collector) bool {
	return false
}

func TestNewWithRegisterer_RegisterError(t *testing.T) {
	registerErr := errors.New("register failed")

	_, err := NewWithRegisterer(failingRegisterer{err: registerErr})
	if !errors.Is(err, registerErr) {
		t.Fatalf("error = %v, want wrapped register error", err)
	}
}

func TestNewWithRegisterer_IncompatibleCollectorType(t *testing.T) {
	registry := prom.NewRegistry()
	gauge := prom.NewGaugeVec(
		prom.GaugeOpts{
			Name: resolutionTotalName,
			Help: "Client address resolutions by result (success, failure) and failure reason.",
		},
		[]string{"result", "reason"},
	)
	if err := registry.Register(gauge); err != nil {
		t.Fatalf("registry.Register() error = %v", err)
	}

	_, err := NewWithRegisterer(registry)
	if err == nil {
		t.Fatal("expected error for incompatible existing collector type")
	}
	if !strings.Contains(err.Error(), "incompatible collector type") {
		t.Fatalf("error = %q, want incompatible collector type message", err.Error())
	}
}

func TestWithRegisterer_OptionError(t *testing.T) {
	registerErr := errors.New("register failed")

	_, err := ipgate.New(WithRegisterer(failingRegisterer{err: registerErr}))
	if !errors.Is(err, registerErr) {
		t.Fatalf("error = %v, want wrapped register error", err)
	}

	var cfgErr *ipgate.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *ipgate.ConfigurationError", err)
	}
}

func counterValue(registry *prom.Registry, metricName string, labels map[string]string) float64 {
	value, _, err := lookupCounterValue(registry, metricName, labels)
	if err != nil {
		return 0
	}
	return value
}

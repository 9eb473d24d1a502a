package ipgate

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

type panicOnNilHeaderProvider struct{}

func (p *panicOnNilHeaderProvider) Values(string) []string {
	if p == nil {
		panic("nil header provider should not be called")
	}

	return nil
}

func TestAuthorizeFrom_ParityWithAuthorize(t *testing.T) {
	filter := mustNewFilter(t, TrustedProxyDepth(1), Allow("203.0.113.7"))

	tests := []struct {
		name    string
		remote  string
		headers []string
	}{
		{name: "authorized", remote: "10.0.0.5:1", headers: []string{"203.0.113.7"}},
		{name: "not allowed", remote: "10.0.0.5:1", headers: []string{"198.51.100.9"}},
		{name: "too short", remote: "10.0.0.5:1"},
		{name: "duplicate header", remote: "10.0.0.5:1", headers: []string{"203.0.113.7", "203.0.113.7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newTestRequest(tt.remote, "/parity", tt.headers...)

			httpDecision := decisionStateOf(filter.Authorize(req))
			inputDecision := decisionStateOf(filter.AuthorizeFrom(RequestInput{
				Context:    req.Context(),
				RemoteAddr: req.RemoteAddr,
				Path:       req.URL.Path,
				Headers:    req.Header,
			}))

			if httpDecision != inputDecision {
				t.Fatalf("AuthorizeFrom() = %+v, Authorize() = %+v", inputDecision, httpDecision)
			}
		})
	}
}

func TestAuthorizeFrom_HeaderValuesFunc(t *testing.T) {
	filter := mustNewFilter(t, TrustedProxyDepth(1), Allow("203.0.113.7"))

	var requested []string
	decision := filter.AuthorizeFrom(RequestInput{
		RemoteAddr: "10.0.0.5:1",
		Headers: HeaderValuesFunc(func(name string) []string {
			requested = append(requested, name)
			if name == "X-Forwarded-For" {
				return []string{"203.0.113.7"}
			}
			return nil
		}),
	})

	if !decision.Authorized() {
		t.Fatalf("AuthorizeFrom() = %+v, want authorized", decision)
	}
	if len(requested) != 1 || requested[0] != "X-Forwarded-For" {
		t.Fatalf("requested headers = %v, want [X-Forwarded-For]", requested)
	}
}

func TestAuthorizeFrom_DepthZeroDoesNotRequestHeaders(t *testing.T) {
	filter := mustNewFilter(t, Allow("203.0.113.7"))

	decision := filter.AuthorizeFrom(RequestInput{
		RemoteAddr: "203.0.113.7:1",
		Headers: HeaderValuesFunc(func(string) []string {
			t.Fatal("headers requested with depth 0")
			return nil
		}),
	})

	if !decision.Authorized() {
		t.Fatalf("AuthorizeFrom() = %+v, want authorized", decision)
	}
}

func TestAuthorizeFrom_TypedNilHeaderProviderTreatedAsAbsent(t *testing.T) {
	filter := mustNewFilter(t, TrustedProxyDepth(1), Allow("203.0.113.7"))

	var provider *panicOnNilHeaderProvider
	var nilFunc HeaderValuesFunc
	var nilHeader http.Header

	for name, headers := range map[string]HeaderValues{
		"typed nil pointer": provider,
		"nil func":          nilFunc,
		"nil http.Header":   nilHeader,
	} {
		t.Run(name, func(t *testing.T) {
			decision := filter.AuthorizeFrom(RequestInput{RemoteAddr: "10.0.0.5:1", Headers: headers})
			if got := decision.Reason(); got != ReasonChainTooShort {
				t.Fatalf("Reason() = %q, want %q", got, ReasonChainTooShort)
			}
		})
	}
}

func TestAuthorizeFrom_CanceledContext(t *testing.T) {
	filter := mustNewFilter(t, Allow("203.0.113.7"))
	logger := &capturedLogger{}
	metrics := newMockMetrics()
	observed := mustNewFilter(t, Allow("203.0.113.7"), WithLogger(logger), WithMetrics(metrics))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := RequestInput{Context: ctx, RemoteAddr: "203.0.113.7:1"}

	if _, err := filter.ResolveFrom(input); !errors.Is(err, context.Canceled) {
		t.Fatalf("ResolveFrom() error = %v, want context.Canceled", err)
	}

	decision := observed.AuthorizeFrom(input)
	if decision.Authorized() {
		t.Fatal("AuthorizeFrom() authorized a canceled request")
	}
	if got := metrics.getDecisionCount(OutcomeRejected); got != 1 {
		t.Fatalf("rejected decisions = %d, want 1", got)
	}
	entries := logger.snapshot()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	assertAttr(t, entries[0].attrs, "event", "canceled")
}

func TestAuthorizeFrom_NilContextDefaultsToBackground(t *testing.T) {
	filter := mustNewFilter(t, Allow("203.0.113.7"))

	decision := filter.AuthorizeFrom(RequestInput{RemoteAddr: "203.0.113.7:1"})
	if !decision.Authorized() {
		t.Fatalf("AuthorizeFrom() = %+v, want authorized", decision)
	}
}

func TestHeaderValuesFunc_NilSafe(t *testing.T) {
	var f HeaderValuesFunc
	if got := f.Values("X-Forwarded-For"); got != nil {
		t.Fatalf("Values() = %v, want nil", got)
	}
}

package ipgate

// Metrics records resolution outcomes and access decisions emitted by Filter.
//
// Implementations should be safe for concurrent use, as a single Filter
// instance is typically shared across many goroutines.
type Metrics interface {
	// RecordResolutionSuccess is called when a client address is resolved.
	RecordResolutionSuccess()
	// RecordResolutionFailure is called with the failure reason label when
	// resolution fails.
	RecordResolutionFailure(reason string)
	// RecordDecision is called once per request with OutcomeAuthorized or
	// OutcomeRejected.
	RecordDecision(outcome string)
}

// noopMetrics is the default Metrics implementation when metrics are not
// explicitly configured.
type noopMetrics struct{}

func (noopMetrics) RecordResolutionSuccess() {}

func (noopMetrics) RecordResolutionFailure(string) {}

func (noopMetrics) RecordDecision(string) {}

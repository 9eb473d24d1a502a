package ipgate

import "net/netip"

// State is a step of the per-request access decision.
type State int

const (
	// Start at 1 to avoid zero-value confusion.
	StateReceived State = iota + 1
	StateResolving
	StateResolved
	StateResolutionFailed
	StateAuthorized
	StateRejected
)

// String returns the canonical text representation of s.
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateResolutionFailed:
		return "resolution_failed"
	case StateAuthorized:
		return "authorized"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends the decision.
func (s State) Terminal() bool {
	return s == StateAuthorized || s == StateRejected
}

// Decision is the outcome of running the filter on one request.
//
// State is always StateAuthorized or StateRejected. Via is the state the
// request passed through before it: StateResolved or StateResolutionFailed.
// Addr is valid whenever resolution succeeded, including for allowlist
// misses, so callers can audit denied clients. Err is nil only when
// authorized.
type Decision struct {
	State State
	Via   State
	Addr  netip.Addr
	Err   error
}

// Authorized reports whether the request may proceed.
func (d Decision) Authorized() bool {
	return d.State == StateAuthorized
}

// Resolved reports whether a client address was determined.
func (d Decision) Resolved() bool {
	return d.Addr.IsValid()
}

// Path returns the states the request moved through, ending in State.
func (d Decision) Path() []State {
	return []State{StateReceived, StateResolving, d.Via, d.State}
}

// Reason returns the failure label, or "" when authorized.
func (d Decision) Reason() string {
	return ReasonOf(d.Err)
}

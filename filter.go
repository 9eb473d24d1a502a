package ipgate

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
)

// Filter resolves the true client address of each request behind a known
// number of reverse proxies and admits only allowlisted clients.
//
// Filter instances are immutable after New and safe for concurrent reuse.
type Filter struct {
	config *config
}

// New creates a Filter from one or more Option builders.
//
// Without options the filter trusts no proxies (the peer address is the
// client) and its empty allowlist rejects every request.
func New(opts ...Option) (*Filter, error) {
	cfg, err := configFromOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Filter{config: cfg}, nil
}

// Resolve returns the client address of r without consulting the allowlist.
//
// Resolve neither logs nor records metrics; use Authorize for the full
// decision.
func (f *Filter) Resolve(r *http.Request) (netip.Addr, error) {
	return f.ResolveFrom(inputFromRequest(r))
}

// ResolveFrom resolves the client address from framework-agnostic request
// input.
func (f *Filter) ResolveFrom(input RequestInput) (netip.Addr, error) {
	ctx := requestInputContext(input)
	if err := ctx.Err(); err != nil {
		return netip.Addr{}, err
	}

	var headerValues []string
	if f.config.trustedProxyDepth > 0 {
		headerValues = f.config.headerValues(input.Headers)
	}

	return f.config.resolve(input.RemoteAddr, headerValues)
}

// Authorize runs resolution and the allowlist check for r.
func (f *Filter) Authorize(r *http.Request) Decision {
	return f.AuthorizeFrom(inputFromRequest(r))
}

// AuthorizeFrom runs resolution and the allowlist check for framework-agnostic
// request input.
//
// Exactly one decision outcome is recorded in metrics per call and every
// rejection is logged.
func (f *Filter) AuthorizeFrom(input RequestInput) Decision {
	addr, err := f.ResolveFrom(input)
	return f.decide(requestInputContext(input), input, addr, err)
}

// Allowed reports whether addr is in the filter's allowlist.
func (f *Filter) Allowed(addr netip.Addr) bool {
	return f.config.allowList.Contains(addr)
}

// Middleware wraps next so that it only observes authorized requests.
//
// Authorized requests carry their client address in the request context (see
// ClientAddrFromContext). Every rejection, whatever its cause, is answered by
// the reject handler; by default a 403 with the body "Forbidden".
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := f.Authorize(r)
		if !decision.Authorized() {
			f.config.rejectHandler.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClientAddr(r.Context(), decision.Addr)))
	})
}

// HeaderName returns the canonical forwarding header name.
func (f *Filter) HeaderName() string {
	return f.config.headerName
}

// TrustedProxyDepth returns the configured number of trusted hops.
func (f *Filter) TrustedProxyDepth() int {
	return f.config.trustedProxyDepth
}

// AllowList returns the filter's allowlist.
func (f *Filter) AllowList() AllowList {
	return f.config.allowList
}

func (f *Filter) decide(ctx context.Context, input RequestInput, addr netip.Addr, err error) Decision {
	metrics := f.config.metrics

	if err != nil {
		if reason := ReasonOf(err); reason != "" {
			metrics.RecordResolutionFailure(reason)
		}
		decision := Decision{State: StateRejected, Via: StateResolutionFailed, Err: err}
		f.reject(ctx, input, decision)
		return decision
	}

	metrics.RecordResolutionSuccess()

	if !f.config.allowList.Contains(addr) {
		decision := Decision{State: StateRejected, Via: StateResolved, Addr: addr, Err: ErrNotAllowed}
		f.reject(ctx, input, decision)
		return decision
	}

	metrics.RecordDecision(OutcomeAuthorized)
	return Decision{State: StateAuthorized, Via: StateResolved, Addr: addr}
}

func (f *Filter) reject(ctx context.Context, input RequestInput, decision Decision) {
	f.config.metrics.RecordDecision(OutcomeRejected)

	reason := decision.Reason()
	if reason == "" {
		reason = "canceled"
	}

	resolved := ""
	if decision.Addr.IsValid() {
		resolved = decision.Addr.String()
	}

	f.config.logger.WarnContext(ctx, rejectionLogMessage,
		"event", reason,
		"header", f.config.headerName,
		"path", input.Path,
		"remote_addr", input.RemoteAddr,
		"resolved", resolved,
		"error", decision.Err.Error(),
	)
}

func defaultReject(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

package ipgate

import (
	"errors"
	"net/http"
	"net/netip"
)

// TrustedProxyDepth sets how many reverse-proxy hops in front of the service
// are trusted to have appended exactly one address each to the forwarding
// header. With depth 0 the header is ignored and the peer address is the
// client.
func TrustedProxyDepth(depth int) Option {
	return func(c *config) error {
		c.trustedProxyDepth = depth
		return nil
	}
}

// ForwardedHeader sets the forwarding header name. "Forwarded" selects RFC
// 7239 for= parsing; any other name is parsed as a comma-separated address
// list.
func ForwardedHeader(name string) Option {
	return func(c *config) error {
		c.headerName = name
		return nil
	}
}

// Allow adds allowlist entries from address or CIDR literals.
func Allow(literals ...string) Option {
	literals = append([]string(nil), literals...)

	return func(c *config) error {
		prefixes, err := ParsePrefixes(literals...)
		if err != nil {
			return err
		}

		c.allowPrefixes = mergeUniquePrefixes(c.allowPrefixes, prefixes...)
		return nil
	}
}

// AllowPrefixes adds allowlist ranges.
func AllowPrefixes(prefixes ...netip.Prefix) Option {
	prefixes = clonePrefixes(prefixes)

	return func(c *config) error {
		normalized, err := normalizePrefixes(prefixes, "allowlist entry")
		if err != nil {
			return err
		}

		c.allowPrefixes = mergeUniquePrefixes(c.allowPrefixes, normalized...)
		return nil
	}
}

// AllowAddrs adds single-address allowlist entries.
func AllowAddrs(addrs ...netip.Addr) Option {
	addrs = cloneAddrs(addrs)

	return func(c *config) error {
		prefixes := make([]netip.Prefix, 0, len(addrs))
		for _, addr := range addrs {
			if !addr.IsValid() || addr.Zone() != "" {
				return &ConfigurationError{Field: "allowlist entry", Value: addr.String(), Err: errors.New("invalid address")}
			}

			addr = normalizeIP(addr)
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
		}

		c.allowPrefixes = mergeUniquePrefixes(c.allowPrefixes, prefixes...)
		return nil
	}
}

// WithAllowList adds every entry of list.
func WithAllowList(list AllowList) Option {
	return func(c *config) error {
		c.allowPrefixes = mergeUniquePrefixes(c.allowPrefixes, list.entries...)
		return nil
	}
}

// RequireProxyPrefixes restricts the trusted hops to known proxy networks.
//
// When set, the peer address and every header entry consumed as a trusted hop
// must fall inside one of prefixes; otherwise resolution fails with
// ErrUntrustedProxy. It requires TrustedProxyDepth > 0.
func RequireProxyPrefixes(prefixes ...netip.Prefix) Option {
	prefixes = clonePrefixes(prefixes)

	return func(c *config) error {
		normalized, err := normalizePrefixes(prefixes, "proxy prefix")
		if err != nil {
			return err
		}

		c.proxyPrefixes = mergeUniquePrefixes(c.proxyPrefixes, normalized...)
		return nil
	}
}

// MaxChainLength sets the maximum number of entries accepted in the
// forwarding header.
func MaxChainLength(max int) Option {
	return func(c *config) error {
		c.maxChainLength = max
		return nil
	}
}

// WithLogger sets the logger used for rejection warnings.
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithMetrics sets a concrete metrics implementation.
//
// If previously configured, a metrics factory is disabled.
func WithMetrics(metrics Metrics) Option {
	return func(c *config) error {
		c.metrics = metrics
		c.metricsFactory = nil
		c.useMetricsFactory = false
		return nil
	}
}

// WithMetricsFactory configures a lazy metrics constructor.
//
// The factory is invoked only for the final winning metrics option after
// option validation succeeds.
func WithMetricsFactory(factory func() (Metrics, error)) Option {
	return func(c *config) error {
		if factory == nil {
			return &ConfigurationError{Field: "metrics factory", Err: errors.New("cannot be nil")}
		}

		c.metricsFactory = factory
		c.useMetricsFactory = true
		return nil
	}
}

// WithRejectHandler replaces the default 403 response. The handler is called
// for every rejection regardless of its cause and is never told the cause.
func WithRejectHandler(handler http.Handler) Option {
	return func(c *config) error {
		c.rejectHandler = handler
		return nil
	}
}

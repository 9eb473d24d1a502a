package ipgate

import (
	"errors"
	"net/http"
	"net/netip"
	"net/textproto"
)

const (
	// DefaultMaxChainLength is the maximum number of entries accepted in a
	// forwarding header. It bounds parsing work for hostile header values while
	// leaving room for multi-CDN deployments, which rarely exceed 5-10 hops.
	DefaultMaxChainLength = 100

	// DefaultForwardedHeader is the forwarding header consulted when depth > 0.
	DefaultForwardedHeader = "X-Forwarded-For"
)

var errInvalidPrefix = errors.New("invalid prefix")

// headerFormat selects the parser for the forwarding header.
type headerFormat int

const (
	// formatCommaList parses X-Forwarded-For style "a, b, c" values.
	formatCommaList headerFormat = iota + 1
	// formatRFC7239 parses the for= parameters of a Forwarded header.
	formatRFC7239
)

func (f headerFormat) String() string {
	switch f {
	case formatCommaList:
		return "comma_list"
	case formatRFC7239:
		return "rfc7239"
	default:
		return "unknown"
	}
}

// Option configures a Filter.
//
// Construct options using package-provided option builder functions.
type Option func(*config) error

// config holds filter configuration state.
//
// It is mutated by Option functions during construction only; a built Filter
// never writes to it again.
type config struct {
	trustedProxyDepth int
	headerName        string
	headerFormat      headerFormat
	maxChainLength    int

	allowPrefixes []netip.Prefix
	allowList     AllowList

	proxyPrefixes []netip.Prefix
	proxyMatch    prefixMatcher

	logger        Logger
	metrics       Metrics
	rejectHandler http.Handler

	metricsFactory    func() (Metrics, error)
	useMetricsFactory bool
}

func defaultConfig() *config {
	return &config{
		trustedProxyDepth: 0,
		headerName:        DefaultForwardedHeader,
		headerFormat:      formatCommaList,
		maxChainLength:    DefaultMaxChainLength,
		logger:            noopLogger{},
		metrics:           noopMetrics{},
		rejectHandler:     http.HandlerFunc(defaultReject),
	}
}

func applyOptions(c *config, opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}

	return nil
}

func configFromOptions(opts ...Option) (*config, error) {
	cfg := defaultConfig()

	if err := applyOptions(cfg, opts...); err != nil {
		return nil, err
	}

	cfg.headerName = textproto.CanonicalMIMEHeaderKey(cfg.headerName)
	cfg.headerFormat = formatForHeader(cfg.headerName)

	if cfg.useMetricsFactory && cfg.metricsFactory == nil {
		return nil, &ConfigurationError{Field: "metrics factory", Err: errors.New("cannot be nil")}
	}

	validationConfig := cfg
	if cfg.useMetricsFactory {
		validationConfig = cfg.clone()
		validationConfig.metrics = noopMetrics{}
	}

	if err := validationConfig.validate(); err != nil {
		return nil, err
	}

	list, err := NewAllowList(cfg.allowPrefixes...)
	if err != nil {
		return nil, err
	}
	cfg.allowList = list
	cfg.proxyMatch = buildPrefixMatcher(cfg.proxyPrefixes)

	if cfg.useMetricsFactory {
		metrics, err := cfg.metricsFactory()
		if err != nil {
			return nil, &ConfigurationError{Field: "metrics", Err: err}
		}
		cfg.metrics = metrics

		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func formatForHeader(canonicalName string) headerFormat {
	if canonicalName == "Forwarded" {
		return formatRFC7239
	}
	return formatCommaList
}

func (c *config) clone() *config {
	return &config{
		trustedProxyDepth: c.trustedProxyDepth,
		headerName:        c.headerName,
		headerFormat:      c.headerFormat,
		maxChainLength:    c.maxChainLength,
		allowPrefixes:     clonePrefixes(c.allowPrefixes),
		allowList:         c.allowList,
		proxyPrefixes:     clonePrefixes(c.proxyPrefixes),
		proxyMatch:        c.proxyMatch,
		logger:            c.logger,
		metrics:           c.metrics,
		rejectHandler:     c.rejectHandler,
		metricsFactory:    c.metricsFactory,
		useMetricsFactory: c.useMetricsFactory,
	}
}

func clonePrefixes(prefixes []netip.Prefix) []netip.Prefix {
	if prefixes == nil {
		return nil
	}
	cloned := make([]netip.Prefix, len(prefixes))
	copy(cloned, prefixes)
	return cloned
}

func cloneAddrs(addrs []netip.Addr) []netip.Addr {
	if addrs == nil {
		return nil
	}
	cloned := make([]netip.Addr, len(addrs))
	copy(cloned, addrs)
	return cloned
}

func normalizePrefixes(prefixes []netip.Prefix, kind string) ([]netip.Prefix, error) {
	normalized := make([]netip.Prefix, 0, len(prefixes))
	for _, prefix := range prefixes {
		if !prefix.IsValid() {
			return nil, &ConfigurationError{Field: kind, Value: prefix.String(), Err: errInvalidPrefix}
		}
		normalized = append(normalized, normalizePrefix(prefix))
	}

	return normalized, nil
}

func mergeUniquePrefixes(existing []netip.Prefix, additions ...netip.Prefix) []netip.Prefix {
	if len(existing) == 0 && len(additions) == 0 {
		return nil
	}

	merged := make([]netip.Prefix, 0, len(existing)+len(additions))
	seen := make(map[netip.Prefix]struct{}, len(existing)+len(additions))

	for _, prefix := range existing {
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		merged = append(merged, prefix)
	}

	for _, prefix := range additions {
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		merged = append(merged, prefix)
	}

	return merged
}

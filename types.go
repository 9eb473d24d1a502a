package ipgate

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var (
	ErrMissingHeader = errors.New("forwarding header missing")

	ErrMultipleHeaders = errors.New("multiple forwarding headers received")

	ErrChainTooShort = errors.New("forwarding chain shorter than trusted proxy depth")

	ErrChainTooLong = errors.New("forwarding chain too long")

	ErrUnparsableAddress = errors.New("unparsable address in forwarding chain")

	ErrUntrustedProxy = errors.New("trusted hop outside configured proxy ranges")

	ErrNotAllowed = errors.New("client address not in allowlist")
)

const (
	ReasonMissingHeader     = "missing_header"
	ReasonMultipleHeaders   = "multiple_headers"
	ReasonChainTooShort     = "chain_too_short"
	ReasonChainTooLong      = "chain_too_long"
	ReasonUnparsableAddress = "unparsable_address"
	ReasonUntrustedProxy    = "untrusted_proxy"
	ReasonNotAllowed        = "not_allowed"
)

// ResolutionError reports why the client address of a request could not be
// resolved.
//
// Position counts entries from the right of the combined chain (forwarding
// header followed by the peer address); the peer is position 0. It is -1 when
// the failure is not tied to a single entry.
type ResolutionError struct {
	Err         error
	Header      string
	Depth       int
	ChainLength int
	Position    int
	Value       string
}

func (e *ResolutionError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %v (value=%q, position=%d, chain_length=%d, depth=%d)",
			e.Header, e.Err, e.Value, e.Position, e.ChainLength, e.Depth)
	}
	return fmt.Sprintf("%s: %v (chain_length=%d, depth=%d)", e.Header, e.Err, e.ChainLength, e.Depth)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Reason returns the stable label for the failure.
func (e *ResolutionError) Reason() string {
	return reasonOf(e.Err)
}

// ConfigurationError reports an invalid filter configuration. It is only
// returned at construction time.
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ReasonOf returns the stable failure label for err, or "" when err does not
// wrap one of the package sentinels.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	return reasonOf(err)
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrMissingHeader):
		return ReasonMissingHeader
	case errors.Is(err, ErrMultipleHeaders):
		return ReasonMultipleHeaders
	case errors.Is(err, ErrChainTooShort):
		return ReasonChainTooShort
	case errors.Is(err, ErrChainTooLong):
		return ReasonChainTooLong
	case errors.Is(err, ErrUnparsableAddress):
		return ReasonUnparsableAddress
	case errors.Is(err, ErrUntrustedProxy):
		return ReasonUntrustedProxy
	case errors.Is(err, ErrNotAllowed):
		return ReasonNotAllowed
	default:
		return ""
	}
}

// ParseAddrOrPrefix parses an allowlist literal. A bare address becomes a
// single-host prefix; CIDR literals are masked to their network address.
func ParseAddrOrPrefix(literal string) (netip.Prefix, error) {
	s := strings.TrimSpace(literal)
	if s == "" {
		return netip.Prefix{}, &ConfigurationError{Field: "allowlist entry", Value: literal, Err: errors.New("empty entry")}
	}

	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, &ConfigurationError{Field: "allowlist entry", Value: literal, Err: err}
		}
		return normalizePrefix(prefix), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, &ConfigurationError{Field: "allowlist entry", Value: literal, Err: err}
	}
	if addr.Zone() != "" {
		return netip.Prefix{}, &ConfigurationError{Field: "allowlist entry", Value: literal, Err: errors.New("zoned addresses are not supported")}
	}

	addr = normalizeIP(addr)
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// ParsePrefixes parses allowlist or proxy-range literals.
func ParsePrefixes(literals ...string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(literals))
	for _, literal := range literals {
		prefix, err := ParseAddrOrPrefix(literal)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

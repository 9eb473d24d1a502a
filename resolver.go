package ipgate

import (
	"fmt"
	"net/netip"
	"strconv"
)

// ResolveChain is the pure resolution step: it returns the address to treat
// as the true client given the directly observed peer address, the raw
// forwarding header lines (nil when the header is absent) and the trusted
// proxy depth.
//
// With depth 0 the header is ignored and the peer is returned. With depth N
// the header entries followed by the peer form the combined chain; the N
// rightmost entries are the trusted proxies and the (N+1)-th from the right is
// the client. Entries to its left are never inspected.
//
// Failures are *ResolutionError values wrapping ErrChainTooShort (including
// an absent header), ErrMissingHeader (a header present without any address
// token), ErrMultipleHeaders, ErrChainTooLong or ErrUnparsableAddress. A
// negative depth returns a *ConfigurationError.
func ResolveChain(peerAddr string, headerValues []string, depth int) (netip.Addr, error) {
	cfg := defaultConfig()
	cfg.trustedProxyDepth = depth
	if depth > cfg.maxChainLength {
		cfg.maxChainLength = depth
	}
	if err := cfg.validate(); err != nil {
		return netip.Addr{}, err
	}

	return cfg.resolve(peerAddr, headerValues)
}

func (c *config) resolve(peerAddr string, headerValues []string) (netip.Addr, error) {
	if c.trustedProxyDepth == 0 {
		peer := parseIP(peerAddr)
		if !peer.IsValid() {
			return netip.Addr{}, c.resolutionError(ErrUnparsableAddress, 1, 0, peerAddr)
		}
		return normalizeIP(peer), nil
	}

	// An absent header means no proxy reported anything: the combined chain
	// is the peer alone, which is always too short for a positive depth.
	if len(headerValues) == 0 {
		return netip.Addr{}, c.resolutionError(ErrChainTooShort, 1, -1, "")
	}
	if len(headerValues) > 1 {
		return netip.Addr{}, c.resolutionError(ErrMultipleHeaders, 0, -1, strconv.Itoa(len(headerValues))+" header lines")
	}

	parts, err := c.parseChain(headerValues[0])
	if err != nil {
		return netip.Addr{}, err
	}
	if len(parts) == 0 {
		return netip.Addr{}, c.resolutionError(ErrMissingHeader, 1, -1, "")
	}

	chainLength := len(parts) + 1
	if len(parts) < c.trustedProxyDepth {
		return netip.Addr{}, c.resolutionError(ErrChainTooShort, chainLength, -1, "")
	}

	for position := 0; position <= c.trustedProxyDepth; position++ {
		raw := peerAddr
		if position > 0 {
			raw = parts[len(parts)-position]
		}

		addr := parseIP(raw)
		if !addr.IsValid() {
			return netip.Addr{}, c.resolutionError(ErrUnparsableAddress, chainLength, position, raw)
		}
		addr = normalizeIP(addr)

		if position == c.trustedProxyDepth {
			return addr, nil
		}

		if !c.proxyMatch.empty() && !c.proxyMatch.contains(addr) {
			return netip.Addr{}, c.resolutionError(ErrUntrustedProxy, chainLength, position, raw)
		}
	}

	// Unreachable: the loop returns at position == trustedProxyDepth.
	return netip.Addr{}, fmt.Errorf("resolution walked past depth %d", c.trustedProxyDepth)
}

func (c *config) resolutionError(err error, chainLength, position int, value string) *ResolutionError {
	return &ResolutionError{
		Err:         err,
		Header:      c.headerName,
		Depth:       c.trustedProxyDepth,
		ChainLength: chainLength,
		Position:    position,
		Value:       value,
	}
}

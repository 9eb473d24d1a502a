package ipgate

import (
	"fmt"
	"strings"
)

// typicalChainCapacity is the initial capacity used when parsing proxy chains.
//
// Most deployments have short chains (around 1-5 hops). Preallocating 8 avoids
// reallocations in common cases without meaningful memory overhead.
const typicalChainCapacity = 8

// parseChain splits one forwarding header value into address tokens in wire
// order, leftmost first. Tokens are not validated as addresses here; only the
// entries walked during resolution are.
func (c *config) parseChain(value string) ([]string, error) {
	if c.headerFormat == formatRFC7239 {
		return c.parseForwardedValue(value)
	}
	return c.parseCommaList(value)
}

func (c *config) parseCommaList(value string) ([]string, error) {
	parts := make([]string, 0, typicalChainCapacity)
	for part := range strings.SplitSeq(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}

		var err error
		parts, err = c.appendChainPart(parts, trimmed)
		if err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// appendChainPart appends one parsed chain part while enforcing maxChainLength.
func (c *config) appendChainPart(parts []string, part string) ([]string, error) {
	if len(parts) >= c.maxChainLength {
		return nil, &ResolutionError{
			Err:         ErrChainTooLong,
			Header:      c.headerName,
			Depth:       c.trustedProxyDepth,
			ChainLength: len(parts) + 1,
			Position:    -1,
		}
	}

	return append(parts, part), nil
}

// malformedForwardedError tags an RFC 7239 syntax error as an unparsable
// address so it is reported like any other bad chain entry.
func (c *config) malformedForwardedError(err error) error {
	return &ResolutionError{
		Err:      fmt.Errorf("%w: %w", ErrUnparsableAddress, err),
		Header:   c.headerName,
		Depth:    c.trustedProxyDepth,
		Position: -1,
	}
}

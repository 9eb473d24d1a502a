package ipgate

import (
	"errors"
	"fmt"
	"strings"
)

// parseForwardedValue extracts the for= chain from one RFC 7239 Forwarded
// header value, in wire order.
//
// Elements without a for parameter contribute nothing. Any syntax error is
// reported as ErrUnparsableAddress; exceeding maxChainLength is reported as
// ErrChainTooLong.
func (c *config) parseForwardedValue(value string) ([]string, error) {
	parts := make([]string, 0, typicalChainCapacity)
	sc := forwardedScanner{s: value}

	for {
		sc.skipSpace()
		if sc.done() {
			return parts, nil
		}
		if sc.peek() == ',' {
			sc.pos++
			continue
		}

		forAddr, hasFor, err := sc.element()
		if err != nil {
			return nil, c.malformedForwardedError(err)
		}
		if hasFor {
			if parts, err = c.appendChainPart(parts, forAddr); err != nil {
				return nil, err
			}
		}
	}
}

// forwardedScanner is a cursor over a Forwarded header value.
type forwardedScanner struct {
	s   string
	pos int
}

func (sc *forwardedScanner) done() bool { return sc.pos >= len(sc.s) }

func (sc *forwardedScanner) peek() byte { return sc.s[sc.pos] }

func (sc *forwardedScanner) skipSpace() {
	for !sc.done() && (sc.peek() == ' ' || sc.peek() == '\t') {
		sc.pos++
	}
}

// element consumes one comma-terminated element and returns its for value.
// The terminating comma, if any, is consumed too.
func (sc *forwardedScanner) element() (forAddr string, hasFor bool, err error) {
	for {
		sc.skipSpace()
		if sc.done() {
			return forAddr, hasFor, nil
		}
		switch sc.peek() {
		case ',':
			sc.pos++
			return forAddr, hasFor, nil
		case ';':
			sc.pos++
			continue
		}

		key, value, err := sc.pair()
		if err != nil {
			return "", false, err
		}
		if !strings.EqualFold(key, "for") {
			continue
		}
		if hasFor {
			return "", false, errors.New("duplicate for parameter")
		}
		if value == "" {
			return "", false, errors.New("empty for value")
		}
		forAddr, hasFor = value, true
	}
}

// pair consumes key=value, where value is a token or a quoted string, and
// leaves the cursor on the following delimiter.
func (sc *forwardedScanner) pair() (key, value string, err error) {
	start := sc.pos
	for !sc.done() && !strings.ContainsRune("=;,", rune(sc.peek())) {
		sc.pos++
	}
	key = strings.TrimSpace(sc.s[start:sc.pos])
	if sc.done() || sc.peek() != '=' {
		return "", "", fmt.Errorf("invalid forwarded parameter %q", sc.s[start:sc.pos])
	}
	if key == "" {
		return "", "", errors.New("empty parameter key")
	}
	sc.pos++
	sc.skipSpace()

	if !sc.done() && sc.peek() == '"' {
		value, err = sc.quoted()
		if err != nil {
			return "", "", err
		}
		sc.skipSpace()
		if !sc.done() && sc.peek() != ';' && sc.peek() != ',' {
			return "", "", fmt.Errorf("unexpected data after quoted value of %q", key)
		}
		return key, strings.TrimSpace(value), nil
	}

	start = sc.pos
	for !sc.done() && sc.peek() != ';' && sc.peek() != ',' {
		if sc.peek() == '"' {
			return "", "", fmt.Errorf("unexpected quote in value of %q", key)
		}
		sc.pos++
	}
	value = strings.TrimSpace(sc.s[start:sc.pos])
	if value == "" {
		return "", "", fmt.Errorf("empty parameter value for %q", key)
	}
	return key, value, nil
}

// quoted consumes a quoted string starting at the opening quote and resolves
// backslash escapes.
func (sc *forwardedScanner) quoted() (string, error) {
	sc.pos++
	var b strings.Builder
	for !sc.done() {
		ch := sc.peek()
		sc.pos++
		switch ch {
		case '"':
			return b.String(), nil
		case '\\':
			if sc.done() {
				return "", errors.New("unterminated escape")
			}
			b.WriteByte(sc.peek())
			sc.pos++
		default:
			b.WriteByte(ch)
		}
	}
	return "", errors.New("unterminated quoted string")
}

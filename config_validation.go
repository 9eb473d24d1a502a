package ipgate

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

func (c *config) validate() error {
	if c.trustedProxyDepth < 0 {
		return &ConfigurationError{
			Field: "trusted proxy depth",
			Value: strconv.Itoa(c.trustedProxyDepth),
			Err:   fmt.Errorf("must be >= 0"),
		}
	}
	if c.maxChainLength <= 0 {
		return &ConfigurationError{
			Field: "max chain length",
			Value: strconv.Itoa(c.maxChainLength),
			Err:   fmt.Errorf("must be > 0"),
		}
	}
	if c.trustedProxyDepth > c.maxChainLength {
		return &ConfigurationError{
			Field: "trusted proxy depth",
			Value: strconv.Itoa(c.trustedProxyDepth),
			Err:   fmt.Errorf("exceeds max chain length %d; no request could ever resolve", c.maxChainLength),
		}
	}
	if strings.TrimSpace(c.headerName) == "" {
		return &ConfigurationError{Field: "forwarding header", Err: fmt.Errorf("name cannot be empty")}
	}
	if !c.headerFormat.valid() {
		return &ConfigurationError{Field: "forwarding header format", Value: c.headerFormat.String(), Err: fmt.Errorf("unsupported")}
	}
	if len(c.proxyPrefixes) > 0 && c.trustedProxyDepth == 0 {
		return &ConfigurationError{
			Field: "proxy prefixes",
			Err:   fmt.Errorf("require trusted proxy depth > 0; with depth 0 no hop is trusted"),
		}
	}

	if isNilInterface(c.logger) {
		return &ConfigurationError{Field: "logger", Err: fmt.Errorf("cannot be nil")}
	}
	if isNilInterface(c.metrics) {
		return &ConfigurationError{Field: "metrics", Err: fmt.Errorf("cannot be nil")}
	}
	if isNilInterface(c.rejectHandler) {
		return &ConfigurationError{Field: "reject handler", Err: fmt.Errorf("cannot be nil")}
	}
	return nil
}

func (f headerFormat) valid() bool {
	return f == formatCommaList || f == formatRFC7239
}

func isNilInterface(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}

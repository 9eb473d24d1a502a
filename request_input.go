package ipgate

import (
	"context"
	"net/http"
)

// HeaderValues provides access to request header values by name.
//
// Implementations should return one slice entry per received header line to
// preserve duplicate-header detection behavior.
//
// Header names are requested in canonical MIME format (for example
// "X-Forwarded-For").
//
// net/http's http.Header satisfies this interface directly.
type HeaderValues interface {
	Values(name string) []string
}

// HeaderValuesFunc adapts a function to the HeaderValues interface.
type HeaderValuesFunc func(name string) []string

// Values implements HeaderValues.
func (f HeaderValuesFunc) Values(name string) []string {
	if f == nil {
		return nil
	}

	return f(name)
}

// RequestInput provides framework-agnostic request data for authorization.
//
// Context defaults to context.Background() when nil.
//
// For Headers, preserve duplicate header lines as separate values (two
// X-Forwarded-For lines should yield a slice with length 2); they are
// rejected with ErrMultipleHeaders.
type RequestInput struct {
	Context    context.Context
	RemoteAddr string
	Path       string
	Headers    HeaderValues
}

func requestInputContext(input RequestInput) context.Context {
	if input.Context == nil {
		return context.Background()
	}

	return input.Context
}

func inputFromRequest(r *http.Request) RequestInput {
	if r == nil {
		return RequestInput{}
	}

	input := RequestInput{
		Context:    r.Context(),
		RemoteAddr: r.RemoteAddr,
	}
	if r.URL != nil {
		input.Path = r.URL.Path
	}
	if r.Header != nil {
		input.Headers = r.Header
	}

	return input
}

// headerValues returns the lines of the forwarding header, or nil when the
// provider is absent.
func (c *config) headerValues(headers HeaderValues) []string {
	if headers == nil || isNilInterface(headers) {
		return nil
	}

	return headers.Values(c.headerName)
}

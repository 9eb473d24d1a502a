package ipgate

import (
	"errors"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"testing"
)

type resolutionState struct {
	HasAddr bool
	Addr    string
	Reason  string
}

type errorTextState struct {
	HasErr       bool
	ContainsText bool
}

func resolutionStateOf(addr netip.Addr, err error) resolutionState {
	state := resolutionState{
		HasAddr: addr.IsValid(),
		Reason:  ReasonOf(err),
	}
	if addr.IsValid() {
		state.Addr = addr.String()
	}
	return state
}

func errorTextStateOf(err error, contains string) errorTextState {
	return errorTextState{
		HasErr:       err != nil,
		ContainsText: err != nil && strings.Contains(err.Error(), contains),
	}
}

func asResolutionError(t *testing.T, err error) *ResolutionError {
	t.Helper()

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("error %v is not a *ResolutionError", err)
	}
	return resErr
}

func mustNewFilter(t *testing.T, opts ...Option) *Filter {
	t.Helper()

	filter, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return filter
}

func newTestRequest(remoteAddr, path string, forwarded ...string) *http.Request {
	req := &http.Request{
		RemoteAddr: remoteAddr,
		Header:     make(http.Header),
	}

	if path != "" {
		req.URL = &url.URL{Path: path}
	}

	for _, value := range forwarded {
		req.Header.Add(DefaultForwardedHeader, value)
	}

	return req
}

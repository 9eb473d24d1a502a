package ipgate

import (
	"context"
	"net/netip"
)

type clientAddrKey struct{}

// ContextWithClientAddr returns a copy of ctx carrying addr as the resolved
// client address. Invalid addresses leave ctx unchanged.
func ContextWithClientAddr(ctx context.Context, addr netip.Addr) context.Context {
	if !addr.IsValid() {
		return ctx
	}
	return context.WithValue(ctx, clientAddrKey{}, addr)
}

// ClientAddrFromContext returns the client address attached by an authorizing
// Filter.
func ClientAddrFromContext(ctx context.Context) (netip.Addr, bool) {
	if ctx == nil {
		return netip.Addr{}, false
	}
	addr, ok := ctx.Value(clientAddrKey{}).(netip.Addr)
	return addr, ok && addr.IsValid()
}

// Package gingate adapts an ipgate.Filter to gin.
package gingate

import (
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"

	"github.com/synapse-core/ipgate"
)

// ClientAddrKey is the gin context key holding the resolved netip.Addr of an
// authorized request.
const ClientAddrKey = "ipgate.client_addr"

// Middleware runs filter before the remaining gin handlers.
//
// Rejected requests are answered by the filter's reject handler and the chain
// is aborted. Authorized requests continue with the client address attached
// both to the request context and to the gin context under ClientAddrKey.
//
// gin's own ClientIP logic is not consulted.
func Middleware(filter *ipgate.Filter) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorized := false
		filter.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			authorized = true
			c.Request = r
		})).ServeHTTP(c.Writer, c.Request)

		if !authorized {
			c.Abort()
			return
		}

		if addr, ok := ipgate.ClientAddrFromContext(c.Request.Context()); ok {
			c.Set(ClientAddrKey, addr)
		}
		c.Next()
	}
}

// ClientAddr returns the address stored by Middleware.
func ClientAddr(c *gin.Context) (netip.Addr, bool) {
	v, ok := c.Get(ClientAddrKey)
	if !ok {
		return netip.Addr{}, false
	}
	addr, ok := v.(netip.Addr)
	return addr, ok
}

// Package ipgate restricts an HTTP service to an allowlist of client
// addresses when the service sits behind a known number of reverse proxies.
//
// # Features
//
//   - Client resolution by trusted hop count, never by leftmost header entry
//   - Allowlists of single addresses and CIDR ranges, IPv4 and IPv6
//   - Fail-closed: every resolution failure and every allowlist miss is a 403
//   - X-Forwarded-For (comma list) or RFC 7239 Forwarded for= parsing
//   - Optional enforcement that trusted hops come from known proxy networks
//   - Context-aware logging of rejections and pluggable metrics
//   - Framework-agnostic input for non-net/http servers
//
// # How the Client Is Chosen
//
// Each trusted proxy appends the address it received the connection from to
// the forwarding header. The header entries followed by the connecting peer
// form the combined chain. With TrustedProxyDepth(N) the N rightmost entries
// belong to trusted proxies and the entry just left of them is the client:
//
//	X-Forwarded-For: 198.51.100.9, 203.0.113.7, 10.0.0.5
//	peer:            10.0.0.9
//	depth 2:         client = 203.0.113.7
//
// Entries further left are chosen by whoever sent the request and are never
// consulted. With depth 0 the header is ignored and the peer is the client.
//
// # Basic Usage
//
//	filter, err := ipgate.New(
//	    ipgate.PresetSingleReverseProxy(),
//	    ipgate.Allow("203.0.113.7", "198.51.100.0/24"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.Handle("/callbacks/", filter.Middleware(callbacks))
//
// Handlers behind the middleware read the resolved address with
// ClientAddrFromContext.
//
// # Observability
//
// Add logging and metrics for production monitoring
// (Prometheus adapter package: github.com/synapse-core/ipgate/prometheus).
// The logger receives the request context, allowing trace IDs to flow through.
//
//	import ipgateprom "github.com/synapse-core/ipgate/prometheus"
//
//	filter, err := ipgate.New(
//	    ipgate.TrustedProxyDepth(2),
//	    ipgate.Allow("203.0.113.7"),
//	    ipgate.WithLogger(slog.Default()),
//	    ipgateprom.WithMetrics(),
//	)
//
// # Security Considerations
//
//   - The trusted depth must match the real deployment. Too high lets callers
//     pick their own address; too low rejects legitimate traffic.
//   - Repeated forwarding header lines are rejected rather than merged.
//   - Chain length is capped (DefaultMaxChainLength) to bound parsing work.
//   - The rejection response is the same for every cause.
//   - Do not place a "real IP" rewriting middleware in front of the filter.
//
// # Thread Safety
//
// Filter instances are safe for concurrent use. They are typically created
// once at application startup and reused across all requests.
package ipgate

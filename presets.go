package ipgate

// PresetDirectConnection configures a service that clients reach without any
// reverse proxy. The peer address is the client and forwarding headers are
// ignored.
func PresetDirectConnection() Option {
	return TrustedProxyDepth(0)
}

// PresetSingleReverseProxy configures a service behind one reverse proxy (for
// example NGINX or a cloud load balancer) that appends the client address to
// X-Forwarded-For.
func PresetSingleReverseProxy() Option {
	return func(c *config) error {
		return applyOptions(c,
			TrustedProxyDepth(1),
			ForwardedHeader(DefaultForwardedHeader),
		)
	}
}

// PresetEdgeAndLoadBalancer configures a service behind an edge proxy or CDN
// followed by a load balancer, each appending one X-Forwarded-For entry.
func PresetEdgeAndLoadBalancer() Option {
	return func(c *config) error {
		return applyOptions(c,
			TrustedProxyDepth(2),
			ForwardedHeader(DefaultForwardedHeader),
		)
	}
}

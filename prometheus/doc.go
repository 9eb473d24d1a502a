// Package prometheus provides a Prometheus adapter for
// github.com/synapse-core/ipgate.
//
// The package exposes ipgate options that install a Prometheus-backed
// Metrics implementation on a filter, using either the default registerer or a
// caller-provided registerer. Collectors are created lazily, only once the
// rest of the filter configuration has validated.
package prometheus

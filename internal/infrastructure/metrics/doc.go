// Package metrics exposes the bridge's Prometheus collectors.
//
// Collectors are registered on a caller-supplied registry so tests can use
// a fresh prometheus.NewRegistry() and the API can serve it with promhttp.
package metrics

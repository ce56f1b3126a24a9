// Package metrics provides Prometheus instrumentation for the download
// pipeline and the HTTP API.
//
// All collectors are registered on a dedicated registry rather than the
// global default one, so tests can create isolated instances and the
// /metrics endpoint only exposes what this process registered.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the Prometheus registry with the collector sets used
// across the service.
type Registry struct {
	reg *prometheus.Registry

	Downloads *DownloadMetrics
	HTTP      *HTTPMetrics
}

// NewRegistry creates a registry with all collector sets registered,
// plus the standard Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		reg:       reg,
		Downloads: NewDownloadMetrics(reg),
		HTTP:      NewHTTPMetrics(reg),
	}
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Registerer exposes the underlying registerer for ad-hoc collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Package metrics exposes run metrics in the Prometheus text format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicholas-fedor/tagwatch/pkg/metrics"
)

// Path is the endpoint the metrics handler is mounted at.
const Path = "/v1/metrics"

// Handler is an HTTP handle for serving metric data.
type Handler struct {
	Path    string
	Handle  http.HandlerFunc
	Metrics *metrics.Metrics
}

// New creates a handler serving the default Prometheus gatherer, which the
// process-wide run metrics are registered with.
func New() *Handler {
	m := metrics.Default()
	handler := promhttp.Handler()

	return &Handler{
		Path:    Path,
		Handle:  handler.ServeHTTP,
		Metrics: m,
	}
}

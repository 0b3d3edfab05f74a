// Package exporters exposes the session metrics over HTTP and SSE.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/vspfilter/internal/logging"
)

// HTTPHandler serves the default registry, which holds the vspfilter
// metrics plus the Go and process collectors. Gathering errors are logged
// and the metrics that could be gathered are still served.
func HTTPHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:          promLogger{},
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}))
}

// promLogger adapts the metrics module logger to promhttp.Logger.
type promLogger struct{}

func (promLogger) Println(v ...any) {
	logging.GetLogger("metrics").Warn("Metrics gathering failed", "error", v)
}

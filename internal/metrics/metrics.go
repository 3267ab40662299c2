// Package metrics contains the prometheus metrics of the request filter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace is the namespace of all metrics.
const namespace = "reqfilter"

// Label values of the status labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// InterceptorRequests is the number of requests seen by the interceptor by
// their verdict.
var InterceptorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:      "requests_total",
	Namespace: namespace,
	Subsystem: "interceptor",
	Help:      "The number of intercepted requests by verdict.",
}, []string{"verdict"})

// FetcherLists is the number of fetched filter lists by status.
var FetcherLists = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:      "lists_total",
	Namespace: namespace,
	Subsystem: "fetcher",
	Help:      "The number of fetched filter lists by status.",
}, []string{"status"})

// StoreOps is the number of filter store operations by operation and status.
var StoreOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:      "ops_total",
	Namespace: namespace,
	Subsystem: "store",
	Help:      "The number of filter store operations.",
}, []string{"op", "status"})

// EngineRules is the number of rules in the current engine.
var EngineRules = promauto.NewGauge(prometheus.GaugeOpts{
	Name:      "rules",
	Namespace: namespace,
	Subsystem: "engine",
	Help:      "The number of rules in the current engine.",
})

// StatusLabel returns the status label value for err.
func StatusLabel(err error) (status string) {
	if err != nil {
		return StatusError
	}

	return StatusOK
}

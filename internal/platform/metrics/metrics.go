// Package metrics exposes Prometheus collectors for store, query and
// analytics operations and for HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// operationTotal counts domain operations by component, op and outcome.
	operationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medrecord_operation_total",
		Help: "Total domain operations by component, operation and outcome",
	}, []string{"component", "op", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medrecord_operation_duration_seconds",
		Help:    "Domain operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"component", "op"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medrecord_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medrecord_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Observe records one operation that started at start. It is meant to be
// deferred with a pointer to the named error result:
//
//	defer metrics.Observe("store", "create_record", time.Now(), &err)
func Observe(component, op string, start time.Time, errp *error) {
	outcome := OutcomeOK
	if errp != nil && *errp != nil {
		outcome = OutcomeError
	}
	operationTotal.WithLabelValues(component, op, outcome).Inc()
	operationDuration.WithLabelValues(component, op).Observe(time.Since(start).Seconds())
}

// Middleware records request counts and latency keyed by the matched route.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			httpRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

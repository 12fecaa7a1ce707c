package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline outcomes counted by digit_pipeline_outcomes_total.
const (
	outcomeFound       = "found"
	outcomeFallback    = "fallback"
	outcomeRepaired    = "repaired"
	outcomeDecodeError = "decode_error"
)

type metrics struct {
	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// newMetrics creates the API collectors and registers them with reg.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "digit_in_flight_requests",
			Help: "Number of requests currently being served.",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digit_api_requests_total",
				Help: "Requests served, by status code, method and route.",
			},
			[]string{"code", "method", "route"},
		),
		// Normalization takes milliseconds; a remote classifier can take
		// seconds
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "digit_request_duration_seconds",
				Help:    "A histogram of latencies for requests.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digit_pipeline_outcomes_total",
				Help: "Normalization outcomes: found, fallback, repaired or decode_error.",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(m.inFlight, m.requests, m.duration, m.outcomes)
	return m
}

// instrument records in-flight, count and latency for every request.
func (m *metrics) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(strconv.Itoa(c.Writer.Status()), c.Request.Method, route).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *metrics) outcome(found, repaired bool) {
	if found {
		m.outcomes.WithLabelValues(outcomeFound).Inc()
	} else {
		m.outcomes.WithLabelValues(outcomeFallback).Inc()
	}
	if repaired {
		m.outcomes.WithLabelValues(outcomeRepaired).Inc()
	}
}

// Package metrics registers the service's Prometheus collectors.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// EventsRecorded counts audience events accepted by the ingestor.
	EventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_events_recorded_total",
			Help: "Audience events persisted, by event type",
		},
		[]string{"type"},
	)

	// SegmentBuilds counts segment rebuilds by scope (all or campaign).
	SegmentBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_segment_builds_total",
			Help: "Segment builds, by scope",
		},
		[]string{"scope"},
	)

	// ActionsCreated counts audience actions, by action type.
	ActionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_actions_total",
			Help: "Audience actions created, by type",
		},
		[]string{"type"},
	)

	// OutreachSteps counts processed outreach steps.
	OutreachSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_steps_total",
			Help: "Outreach steps attempted, by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// RunsClaimed counts runs claimed by the processor.
	RunsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_runs_claimed_total",
			Help: "Outreach runs claimed for processing",
		},
	)

	// HandoffTickets counts handoff tickets opened.
	HandoffTickets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handoff_tickets_total",
			Help: "Handoff tickets created",
		},
	)
)

// Middleware records request counts and latencies. The matched route
// template is used as label to keep cardinality low.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

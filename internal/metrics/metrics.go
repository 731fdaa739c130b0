// Package metrics provides Prometheus instrumentation for the fraud pipeline.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts scored transactions by final verdict.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "decisions_total",
			Help:      "Total transaction decisions by verdict.",
		},
		[]string{"verdict"},
	)

	// RuleViolationsTotal counts rule hits by rule name.
	RuleViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "rule_violations_total",
			Help:      "Total rule violations by rule.",
		},
		[]string{"rule"},
	)

	// EvaluationDuration observes end-to-end pipeline latency.
	EvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fraudgate",
		Name:      "evaluation_duration_seconds",
		Help:      "Decision pipeline latency in seconds.",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	})

	// GraphTraversalFailuresTotal counts link-analysis traversals that
	// degraded to zero risk on an internal error.
	GraphTraversalFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudgate",
		Name:      "graph_traversal_failures_total",
		Help:      "Total graph traversals that failed and degraded to zero risk.",
	})

	// GraphNodes tracks entity graph node count.
	GraphNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate", Name: "graph_nodes",
		Help: "Current number of entity graph nodes.",
	})
	// GraphEdges tracks entity graph edge count.
	GraphEdges = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate", Name: "graph_edges",
		Help: "Current number of entity graph edges.",
	})
	// GraphFraudNodes tracks nodes flagged as confirmed fraud.
	GraphFraudNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate", Name: "graph_fraud_nodes",
		Help: "Current number of fraud-flagged graph nodes.",
	})

	// ActiveWebSocketClients tracks connected decision-stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate", Name: "active_websocket_clients",
		Help: "Number of currently connected WebSocket clients.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		RuleViolationsTotal,
		EvaluationDuration,
		GraphTraversalFailuresTotal,
		GraphNodes,
		GraphEdges,
		GraphFraudNodes,
		ActiveWebSocketClients,
	)
}

// SetGraphStats updates the entity graph gauges.
func SetGraphStats(nodes, edges, fraudNodes int) {
	GraphNodes.Set(float64(nodes))
	GraphEdges.Set(float64(edges))
	GraphFraudNodes.Set(float64(fraudNodes))
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

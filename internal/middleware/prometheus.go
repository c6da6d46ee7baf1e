package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"consultline/pkg/metrics"
)

// PrometheusMiddleware is a Gin middleware that records HTTP metrics
type PrometheusMiddleware struct {
	metrics *metrics.Metrics
}

// NewPrometheusMiddleware creates a new Prometheus middleware
func NewPrometheusMiddleware(m *metrics.Metrics) *PrometheusMiddleware {
	return &PrometheusMiddleware{
		metrics: m,
	}
}

// Handler returns the Gin middleware handler
func (p *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p.metrics.IncrementHTTPRequestsInFlight()
		defer p.metrics.DecrementHTTPRequestsInFlight()

		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		p.metrics.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

// MetricsHandler serves the metrics gathered by g in the Prometheus text format
func MetricsHandler(g prometheus.Gatherer) gin.HandlerFunc {
	h := promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: false})
	return gin.WrapH(h)
}

// GetMetricsPath returns the path for the metrics endpoint
func GetMetricsPath() string {
	return "/metrics"
}

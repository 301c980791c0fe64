package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	pkgmetrics "github.com/Unleash/unleash-edge/pkg/metrics"
)

// HTTPMetricsMiddleware records every downstream request's outcome and
// latency into the Prometheus collectors served at
// /internal-backstage/metrics.
type HTTPMetricsMiddleware struct{}

// NewHTTPMetricsMiddleware creates the gin-native request metrics middleware.
func NewHTTPMetricsMiddleware() *HTTPMetricsMiddleware { return &HTTPMetricsMiddleware{} }

// Handler returns the gin middleware handler. It uses c.FullPath() (the
// registered route template, e.g. "/client/features") rather than the raw
// URL so the label cardinality stays bounded regardless of query strings.
func (m *HTTPMetricsMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		pkgmetrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		pkgmetrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fabnest-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics records request count and latency labelled by route template.
// Requests to any of the skip routes (health checks, the scrape endpoint)
// are not recorded.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skipped[route]; ok && route != "" {
			return
		}
		// Raw paths would explode label cardinality.
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

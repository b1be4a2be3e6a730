package middleware

import (
	"strconv"
	"time"

	"github.com/GoPolymarket/polylend/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware observes latency per route template, so /assets/:id is one series.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"image-annotator/internal/metrics"
)

// Metrics records request counts and latency labelled by route template so
// path parameters do not explode cardinality.
func Metrics(m metrics.HTTP) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.Request.Method, routeOf(c), strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

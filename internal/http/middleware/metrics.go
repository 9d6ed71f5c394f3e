package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/memstream-backend/internal/observability"
)

// Metrics counts requests, 5xx responses and in-flight requests in the
// process registry behind /metricsz.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		m.HTTPInflightInc()
		defer m.HTTPInflightDec()

		c.Next()

		m.ObserveHTTP(c.Writer.Status())
	}
}

package middleware

import (
	"time"

	"weddingdesk/internal/metrics"

	"github.com/gin-gonic/gin"
)

func HttpMiddleware(obs metrics.HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		obs.ObserveRequest(path, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

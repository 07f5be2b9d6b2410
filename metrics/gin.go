package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// GinHTTPMiddleware 返回记录 HTTP RED 指标的 Gin 中间件
//
// 路由标签使用 gin 的路由模板（如 /api/auth/*path），未命中路由时记为 unknown，
// 避免把原始 URL 作为标签
func GinHTTPMiddleware(httpMetrics *HTTPServerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpMetrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		httpMetrics.Observe(c.Request.Context(), c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

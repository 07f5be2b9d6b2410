package gateway

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/youthconnect/gatekeeper/clog"
)

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

// requestID 为每个请求分配 ID，沿用上游传入的 X-Request-ID
//
// 需放在 otelgin 之后，这样 trace_id 也能写入日志上下文。
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)

		ctx := clog.WithRequestID(c.Request.Context(), id)
		if sc := oteltrace.SpanContextFromContext(ctx); sc.HasTraceID() {
			ctx = context.WithValue(ctx, clog.TraceIDKey, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// accessLog 记录每个请求的结果
func accessLog(logger clog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []clog.Field{
			clog.String("method", c.Request.Method),
			clog.String("path", c.Request.URL.Path),
			clog.Int("status", status),
			clog.Duration("latency", time.Since(start)),
			clog.String("client_ip", c.ClientIP()),
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			logger.WarnContext(ctx, "request completed", fields...)
		case status == 429:
			logger.InfoContext(ctx, "request throttled", fields...)
		default:
			logger.DebugContext(ctx, "request completed", fields...)
		}
	}
}

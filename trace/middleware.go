package trace

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/stats"
)

// GinMiddleware 返回 Gin 跟踪中间件，跳过管理路由
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithGinFilter(func(c *gin.Context) bool {
			return c.FullPath() != "/metrics" && c.FullPath() != "/actuator/health"
		}),
	)
}

// GRPCServerStatsHandler 返回 gRPC 服务端跟踪处理器
func GRPCServerStatsHandler() stats.Handler {
	return otelgrpc.NewServerHandler()
}

// GRPCClientStatsHandler 返回 gRPC 客户端跟踪处理器
func GRPCClientStatsHandler() stats.Handler {
	return otelgrpc.NewClientHandler()
}

// TraceID 返回当前 Span 的 TraceID，没有有效 Span 时返回空串
func TraceID(c *gin.Context) string {
	sc := oteltrace.SpanContextFromContext(c.Request.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

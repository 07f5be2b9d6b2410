package resilience

import (
	"context"
	"strings"

	"google.golang.org/grpc"
)

// TargetFunc 从 gRPC 调用中提取目标服务名，决定使用哪个熔断器和超时配置
type TargetFunc func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string

// StaticTarget 所有调用使用固定的目标名，通常为配置中的服务名，例如 "user-service"
func StaticTarget(name string) TargetFunc {
	return func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string {
		return name
	}
}

// ConnTarget 使用连接的 target
// 返回示例: "dns:///user-service:9001"
func ConnTarget() TargetFunc {
	return func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string {
		return cc.Target()
	}
}

// ServiceTarget 使用 gRPC 服务全名
// 返回示例: "youthconnect.user.v1.UserService"
func ServiceTarget() TargetFunc {
	return func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string {
		name := strings.TrimPrefix(fullMethod, "/")
		if i := strings.LastIndex(name, "/"); i >= 0 {
			return name[:i]
		}
		return name
	}
}

// MethodTarget 按方法熔断
// 返回示例: "/youthconnect.user.v1.UserService/GetProfile"
func MethodTarget() TargetFunc {
	return func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string {
		return fullMethod
	}
}

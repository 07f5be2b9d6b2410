package gateway

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/youthconnect/gatekeeper/admission"
	"github.com/youthconnect/gatekeeper/resilience"
	"github.com/youthconnect/gatekeeper/trace"
)

// GRPCServerOptions 网关 gRPC 服务端选项：链路追踪与准入控制
func (g *Gateway) GRPCServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StatsHandler(trace.GRPCServerStatsHandler()),
		grpc.ChainUnaryInterceptor(admission.UnaryServerInterceptor(g.gate, nil)),
		grpc.ChainStreamInterceptor(admission.StreamServerInterceptor(g.gate, nil)),
	}
}

// GRPCDialOptions 调用下游 gRPC 服务的客户端选项，所有调用都经过 target 的弹性策略
//
//	conn, err := grpc.NewClient("dns:///user-service:9001", gw.GRPCDialOptions("user-service")...)
func (g *Gateway) GRPCDialOptions(target string) []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(trace.GRPCClientStatsHandler()),
		grpc.WithChainUnaryInterceptor(resilience.UnaryClientInterceptor(g.orch,
			resilience.WithTargetFunc(resilience.StaticTarget(target)))),
	}
}

package admission

import (
	"context"
	"net"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/youthconnect/gatekeeper/ratelimit"
)

// GRPCOptions gRPC 拦截器选项
type GRPCOptions struct {
	// KeyFunc 提取客户端标识，默认 PeerIP
	KeyFunc func(ctx context.Context, fullMethod string) string

	// ClassFunc 确定端点类别，默认 ClassifyMethod
	ClassFunc func(ctx context.Context, fullMethod string) ratelimit.EndpointClass
}

func (o *GRPCOptions) withDefaults() GRPCOptions {
	out := GRPCOptions{}
	if o != nil {
		out = *o
	}
	if out.KeyFunc == nil {
		out.KeyFunc = PeerIP
	}
	if out.ClassFunc == nil {
		out.ClassFunc = func(ctx context.Context, fullMethod string) ratelimit.EndpointClass {
			return ClassifyMethod(fullMethod)
		}
	}
	return out
}

// UnaryServerInterceptor 返回 gRPC 一元调用服务端拦截器，拒绝时返回 codes.ResourceExhausted
//
//	server := grpc.NewServer(
//		grpc.ChainUnaryInterceptor(admission.UnaryServerInterceptor(gate, nil)),
//	)
func UnaryServerInterceptor(gate *Gate, opts *GRPCOptions) grpc.UnaryServerInterceptor {
	o := opts.withDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := admit(ctx, gate, o, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor 返回 gRPC 流式调用服务端拦截器，在建立流时做一次准入决策
func StreamServerInterceptor(gate *Gate, opts *GRPCOptions) grpc.StreamServerInterceptor {
	o := opts.withDefaults()

	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := admit(stream.Context(), gate, o, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, stream)
	}
}

func admit(ctx context.Context, gate *Gate, o GRPCOptions, fullMethod string) error {
	d := gate.Admit(ctx, o.KeyFunc(ctx, fullMethod), o.ClassFunc(ctx, fullMethod))
	if d.Allowed {
		return nil
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(
		strings.ToLower(HeaderRetryAfter), strconv.FormatInt(d.RetryAfterSeconds(), 10),
		strings.ToLower(HeaderRemaining), strconv.FormatInt(d.Remaining, 10),
	))
	return status.Error(codes.ResourceExhausted, RejectMessage)
}

// PeerIP 使用传输层对端地址作为客户端 IP
//
// 不读取 x-forwarded-for 元数据：客户端可以任意设置它。部署在可信代理之后时，
// 通过 GRPCOptions.KeyFunc 提供自己的取值方式。
func PeerIP(ctx context.Context, fullMethod string) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// ClassifyMethod 按 gRPC 服务名确定端点类别
//
//	/youthconnect.auth.v1.AuthService/Login -> AUTH
//	/youthconnect.ussd.v1.UssdService/Menu  -> USSD
func ClassifyMethod(fullMethod string) ratelimit.EndpointClass {
	service := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(service, "/"); i >= 0 {
		service = service[:i]
	}
	for _, part := range strings.Split(strings.ToLower(service), ".") {
		switch {
		case part == "auth" || strings.HasPrefix(part, "authservice"):
			return ratelimit.ClassAuth
		case part == "ussd" || strings.HasPrefix(part, "ussdservice"):
			return ratelimit.ClassUSSD
		}
	}
	return ratelimit.ClassGeneral
}

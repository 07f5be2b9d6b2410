package resilience

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/youthconnect/gatekeeper/xerrors"
)

// InterceptorOption 拦截器选项函数类型
type InterceptorOption func(*interceptorConfig)

type interceptorConfig struct {
	targetFunc TargetFunc
}

// WithTargetFunc 设置目标服务名提取函数，默认 ConnTarget()
func WithTargetFunc(fn TargetFunc) InterceptorOption {
	return func(cfg *interceptorConfig) {
		if fn != nil {
			cfg.targetFunc = fn
		}
	}
}

// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器
//
// 每次调用都经过 Invoke。参数错误、鉴权失败这类业务状态原样返回，
// 不计入熔断也不重试；其余终止失败统一映射为 codes.Unavailable。
//
//	conn, _ := grpc.NewClient(
//		"dns:///user-service:9001",
//		grpc.WithUnaryInterceptor(resilience.UnaryClientInterceptor(orch,
//			resilience.WithTargetFunc(resilience.StaticTarget("user-service")))),
//	)
func UnaryClientInterceptor(o *Orchestrator, opts ...InterceptorOption) grpc.UnaryClientInterceptor {
	cfg := &interceptorConfig{targetFunc: ConnTarget()}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		target := cfg.targetFunc(ctx, method, cc)

		// 业务状态作为成功的交换结果带出，不进入重试和熔断统计
		st, err := Invoke(ctx, o, target, func(ctx context.Context) (*status.Status, error) {
			err := invoker(ctx, method, req, reply, cc, callOpts...)
			if isBusinessStatus(err) {
				return status.Convert(err), nil
			}
			return nil, classifyStatus(err)
		}, nil)
		if err != nil {
			return status.Error(codes.Unavailable, err.Error())
		}
		if st != nil {
			return st.Err()
		}
		return nil
	}
}

// isBusinessStatus 判断状态码是否为下游给出的正常业务应答
func isBusinessStatus(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.FailedPrecondition,
		codes.OutOfRange, codes.Unauthenticated, codes.PermissionDenied, codes.Unimplemented:
		return true
	default:
		return false
	}
}

// classifyStatus 为传输层失败标记错误类别
func classifyStatus(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return xerrors.WithKind(err, xerrors.KindTimeout)
	case codes.Canceled:
		return errors.Join(context.Canceled, err)
	default:
		return xerrors.WithKind(err, xerrors.KindRetryable)
	}
}

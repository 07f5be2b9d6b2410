package breaker

import "github.com/youthconnect/gatekeeper/xerrors"

// 错误定义
var (
	// ErrNameEmpty 熔断器名称为空
	ErrNameEmpty = xerrors.WithKind(xerrors.New("breaker: name is empty"), xerrors.KindInvalidArgument)

	// ErrInvalidPolicy 熔断策略无效
	ErrInvalidPolicy = xerrors.WithKind(xerrors.New("breaker: invalid policy"), xerrors.KindInvalidArgument)

	// ErrOpenState 熔断器处于打开状态
	ErrOpenState = xerrors.WithKind(xerrors.New("breaker: circuit breaker is open"), xerrors.KindCircuitOpen)

	// ErrTooManyRequests 半开状态下试探名额已用完
	ErrTooManyRequests = xerrors.WithKind(xerrors.New("breaker: too many requests in half-open state"), xerrors.KindCircuitOpen)
)

// IsRejected 判断错误是否为熔断器拒绝
func IsRejected(err error) bool {
	return xerrors.KindOf(err) == xerrors.KindCircuitOpen
}

package ratelimit

import "github.com/youthconnect/gatekeeper/xerrors"

var (
	// ErrKeyEmpty 客户端标识为空
	ErrKeyEmpty = xerrors.WithKind(xerrors.New("ratelimit: client key is empty"), xerrors.KindInvalidArgument)

	// ErrUnknownClass 未知的端点类别
	ErrUnknownClass = xerrors.WithKind(xerrors.New("ratelimit: unknown endpoint class"), xerrors.KindInvalidArgument)

	// ErrInvalidRule 限流规则无效
	ErrInvalidRule = xerrors.WithKind(xerrors.New("ratelimit: invalid rule"), xerrors.KindInvalidArgument)

	// ErrInvalidIdleTimeout 空闲超时小于空桶补满时间，淘汰后重建的桶会比原桶拥有更多令牌
	ErrInvalidIdleTimeout = xerrors.WithKind(xerrors.New("ratelimit: idle timeout shorter than full refill time"), xerrors.KindInvalidArgument)

	// ErrInvalidMode 未知的令牌桶模式
	ErrInvalidMode = xerrors.WithKind(xerrors.New("ratelimit: invalid mode"), xerrors.KindInvalidArgument)
)

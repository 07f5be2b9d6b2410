package xerrors

import (
	"context"
	"errors"
)

// Kind 错误类别
//
// 类别是封闭的：所有组件只认这里列出的取值。新增类别时需要同步检查
// IsRetryable 以及熔断器的忽略列表。
type Kind int

const (
	// KindUnknown 未分类错误，下游的普通运行时失败都落在这里
	KindUnknown Kind = iota
	// KindAdmissionRejected 客户端超出限流配额
	KindAdmissionRejected
	// KindCircuitOpen 目标服务熔断中，调用被短路
	KindCircuitOpen
	// KindTimeout 单次调用超时
	KindTimeout
	// KindRetryable 明确标记为可重试的下游失败
	KindRetryable
	// KindInvalidArgument 调用方参数错误
	KindInvalidArgument
	// KindSecurity 认证或鉴权失败
	KindSecurity
)

// String 返回类别名称，用于日志和指标标签
func (k Kind) String() string {
	switch k {
	case KindAdmissionRejected:
		return "admission_rejected"
	case KindCircuitOpen:
		return "circuit_open"
	case KindTimeout:
		return "timeout"
	case KindRetryable:
		return "retryable"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindSecurity:
		return "security"
	default:
		return "unknown"
	}
}

// KindError 携带类别的错误
type KindError struct {
	Kind  Kind
	Cause error
}

func (e *KindError) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return e.Cause.Error()
}

func (e *KindError) Unwrap() error {
	return e.Cause
}

// WithKind 为错误标记类别。err 为 nil 时返回 nil。
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Cause: err}
}

// KindOf 沿错误链查找最近一层的类别。
//
// context.DeadlineExceeded 视为 KindTimeout；没有任何标记的错误返回 KindUnknown。
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsRetryable 判断错误是否值得重试。
//
// 超时、显式可重试以及未分类的下游失败可以重试；调用方错误、安全错误、
// 熔断短路和限流拒绝都不重试。context.Canceled 表示调用方已放弃，同样不重试。
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindTimeout, KindRetryable, KindUnknown:
		return true
	default:
		return false
	}
}

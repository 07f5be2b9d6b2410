package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// Option 组件初始化选项函数
type Option func(*options)

// StateChangeHook 状态变更回调，在熔断器锁外同步调用
type StateChangeHook func(name string, from, to State)

// IgnoreFunc 判断错误是否应被忽略（不计入失败率）
type IgnoreFunc func(err error) bool

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	now    func() time.Time
	ignore IgnoreFunc
	hooks  []StateChangeHook
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "breaker"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 设置 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithClock 设置时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIgnore 设置被忽略错误的判断函数，替换默认规则
func WithIgnore(fn IgnoreFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.ignore = fn
		}
	}
}

// WithStateChangeHook 追加状态变更回调
func WithStateChangeHook(hook StateChangeHook) Option {
	return func(o *options) {
		if hook != nil {
			o.hooks = append(o.hooks, hook)
		}
	}
}

// DefaultIgnore 默认忽略调用方参数错误与调用方主动取消
func DefaultIgnore(err error) bool {
	return xerrors.KindOf(err) == xerrors.KindInvalidArgument || errors.Is(err, context.Canceled)
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		now:    time.Now,
		ignore: DefaultIgnore,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

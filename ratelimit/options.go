package ratelimit

import (
	"time"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger      clog.Logger
	meter       metrics.Meter
	now         func() time.Time
	mode        Mode
	idleTimeout time.Duration
	maxEntries  int
}

// WithLogger 设置 Logger，自动添加 "ratelimit" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("ratelimit")
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

// WithClock 设置令牌桶使用的时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMode 设置令牌桶实现
func WithMode(mode Mode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// WithIdleTimeout 设置令牌桶空闲淘汰时间
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// WithMaxEntries 设置注册表最多保留的令牌桶数
//
// 按容量淘汰会让仍在使用的客户端拿到满桶，见 Config.MaxEntries。
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		now:    time.Now,
		mode:   ModeInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

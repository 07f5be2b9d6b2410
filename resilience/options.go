package resilience

import (
	"time"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
)

const instrumentationName = "github.com/youthconnect/gatekeeper/resilience"

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	tracerProvider oteltrace.TracerProvider
	now            func() time.Time
	message        string
}

// WithLogger 设置 Logger，自动添加 "resilience" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("resilience")
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

// WithTracerProvider 设置 TracerProvider，默认使用全局 otel.GetTracerProvider()
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithClock 设置 *Unavailable 时间戳使用的时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMessage 设置 *Unavailable 的提示信息
func WithMessage(msg string) Option {
	return func(o *options) {
		if msg != "" {
			o.message = msg
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:  clog.Discard(),
		meter:   metrics.Discard(),
		now:     time.Now,
		message: DefaultMessage,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o
}

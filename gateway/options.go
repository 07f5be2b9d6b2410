package gateway

import (
	"net/http"
	"time"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger     clog.Logger
	meter      metrics.Meter
	httpClient *http.Client
	now        func() time.Time
}

// WithLogger 设置 Logger，自动添加 "gateway" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("gateway")
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

// WithHTTPClient 设置转发下游使用的 HTTP 客户端
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithClock 设置时钟，影响令牌桶和响应体时间戳
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

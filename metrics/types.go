// Package metrics 为网关提供统一的指标收集能力。
// 基于 OpenTelemetry 构建，通过 OTel Prometheus Exporter 暴露，
// 提供简洁的 Counter、Gauge、Histogram 指标接口。
//
// 快速开始：
//
//	meter, err := metrics.New(&metrics.Config{
//		Enabled:     true,
//		ServiceName: "gatekeeper",
//		Path:        "/metrics",
//	})
//	if err != nil {
//		return err
//	}
//	defer meter.Shutdown(ctx)
//
//	counter, _ := meter.Counter("admission_requests_total", "准入决策总数")
//	counter.Inc(ctx, metrics.L("class", "AUTH"), metrics.L("decision", "allow"))
//
//	// 挂载到 gin 管理路由
//	router.GET("/metrics", gin.WrapH(metrics.Handler()))
//
// 各组件（ratelimit、breaker、retry、timelimit、resilience、admission）都接受
// WithMeter(meter) 选项，未注入时使用 Discard()。
package metrics

import "context"

// Counter 计数器接口，用于只增不减的累计值
type Counter interface {
	// Inc 将计数器增加 1
	Inc(ctx context.Context, labels ...Label)

	// Add 将计数器增加给定的值，负数会被忽略
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘接口，用于可以任意增减的瞬时值
//
//	gauge, _ := meter.Gauge("breaker_state", "熔断器状态 (0=closed,1=open,2=half_open)")
//	gauge.Set(ctx, 1, metrics.L("service", "ai-service"))
type Gauge interface {
	// Set 将 gauge 设置为给定的值
	Set(ctx context.Context, val float64, labels ...Label)

	// Inc 将 gauge 增加 1
	Inc(ctx context.Context, labels ...Label)

	// Dec 将 gauge 减少 1
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图接口，用于记录值的分布情况，例如下游调用耗时
type Histogram interface {
	// Record 在直方图中记录一个值
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标创建工厂接口
//
// Meter 创建的指标是线程安全的，可以在多个 goroutine 中并发使用
type Meter interface {
	// Counter 创建计数器实例
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)

	// Gauge 创建仪表盘实例
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)

	// Histogram 创建直方图实例
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 关闭 Meter，刷新所有指标
	Shutdown(ctx context.Context) error
}

// MetricOption 指标配置选项函数类型
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	// Unit 指标单位，建议使用 UCUM 代码，例如 "s"、"By"
	Unit string

	// Buckets 直方图桶边界，仅对 Histogram 生效
	Buckets []float64
}

// WithUnit 设置指标的单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图桶边界
//
//	meter.Histogram("resilience_call_duration_seconds", "下游调用耗时",
//		metrics.WithUnit("s"),
//		metrics.WithBuckets([]float64{0.05, 0.1, 0.5, 1, 2, 5, 30}),
//	)
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = append([]float64(nil), buckets...)
	}
}

func buildMetricOptions(opts []MetricOption) *MetricOptions {
	o := &MetricOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

package resilience

import (
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// 指标名称
const (
	// MetricCalls 编排调用次数 (Counter)，outcome 为 success/fallback/unavailable
	MetricCalls = "resilience_calls_total"

	// MetricFallbacks 触发 fallback 的次数 (Counter)
	MetricFallbacks = "resilience_fallbacks_total"

	// MetricDuration 编排调用耗时，含重试等待 (Histogram)
	MetricDuration = "resilience_call_duration_seconds"
)

// 标签
const (
	LabelReason = "reason"
)

// 结果标签值
const (
	outcomeFallback    = "fallback"
	outcomeUnavailable = "unavailable"
)

type instruments struct {
	calls     metrics.Counter
	fallbacks metrics.Counter
	duration  metrics.Histogram
}

func newInstruments(meter metrics.Meter) (*instruments, error) {
	calls, err := meter.Counter(MetricCalls, "Number of calls made through the resilience orchestrator")
	if err != nil {
		return nil, xerrors.Wrap(err, "create calls counter")
	}
	fallbacks, err := meter.Counter(MetricFallbacks, "Number of calls that ended in the fallback path")
	if err != nil {
		return nil, xerrors.Wrap(err, "create fallbacks counter")
	}
	duration, err := meter.Histogram(MetricDuration, "Duration of orchestrated calls including retry waits",
		metrics.WithUnit("s"),
		metrics.WithBuckets([]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}))
	if err != nil {
		return nil, xerrors.Wrap(err, "create duration histogram")
	}
	return &instruments{calls: calls, fallbacks: fallbacks, duration: duration}, nil
}

package breaker

// Metrics 指标常量定义
const (
	// MetricCallsTotal 调用结果数 (Counter)，result 为 success/failure/ignored/rejected
	MetricCallsTotal = "breaker_calls_total"

	// MetricStateChanges 状态变更次数 (Counter)
	MetricStateChanges = "breaker_state_changes_total"

	// MetricState 当前状态 (Gauge)，0=closed 1=open 2=half_open
	MetricState = "breaker_state"

	// LabelService 服务名标签
	LabelService = "service"

	// LabelFromState 源状态标签
	LabelFromState = "from_state"

	// LabelToState 目标状态标签
	LabelToState = "to_state"

	// LabelResult 结果标签
	LabelResult = "result"

	resultRejected = "rejected"
)

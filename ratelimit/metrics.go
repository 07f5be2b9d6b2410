package ratelimit

// Metrics 指标常量定义
const (
	// MetricBucketsCreated 新建令牌桶数 (Counter)
	MetricBucketsCreated = "ratelimit_buckets_created_total"

	// MetricBucketsEvicted 因空闲或容量淘汰的令牌桶数 (Counter)
	MetricBucketsEvicted = "ratelimit_buckets_evicted_total"

	// LabelClass 端点类别标签
	LabelClass = "class"

	// LabelMode 令牌桶模式标签 (interval/smooth)
	LabelMode = "mode"
)

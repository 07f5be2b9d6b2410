package trace

const (
	// 弹性调用的 Span 属性键
	AttrTarget   = "gatekeeper.target"
	AttrAttempts = "gatekeeper.attempts"
	AttrFallback = "gatekeeper.fallback"
	AttrState    = "gatekeeper.breaker.state"

	// 准入决策的 Span 属性键
	AttrClientClass = "gatekeeper.endpoint_class"
	AttrDecision    = "gatekeeper.decision"
)

// SpanNameInvoke 返回一次下游弹性调用的 Span Name
func SpanNameInvoke(target string) string {
	if target == "" {
		return "resilience.invoke"
	}
	return "resilience.invoke " + target
}

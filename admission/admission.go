// Package admission 在请求进入网关时做限流准入决策。
//
// Gate 按 (客户端, 端点类别) 找到令牌桶并尝试取走一个令牌。拒绝是返回值而不是错误，
// 由 HTTP 层转换为 429、由 gRPC 层转换为 ResourceExhausted。
// 令牌桶注册表出错（例如无法识别客户端）时放行，限流器故障不影响业务。
//
//	gate, _ := admission.NewGate(registry, admission.WithLogger(logger))
//	router.Use(admission.GinMiddleware(gate, nil))
package admission

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/ratelimit"
	"github.com/youthconnect/gatekeeper/trace"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// 决策标签值
const (
	DecisionAllow    = "allow"
	DecisionReject   = "reject"
	DecisionDisabled = "disabled"
	DecisionFailOpen = "fail_open"
)

// Decision 准入决策
type Decision struct {
	// Allowed 是否放行
	Allowed bool

	// Remaining 决策后桶内剩余令牌，未经过令牌桶时为 -1
	Remaining int64

	// RetryAfter 被拒绝时距离下一个令牌可用的时间
	RetryAfter time.Duration

	// Class 请求的端点类别
	Class ratelimit.EndpointClass
}

// RetryAfterSeconds 向上取整的等待秒数，被拒绝时至少为 1
func (d Decision) RetryAfterSeconds() int64 {
	if d.Allowed {
		return 0
	}
	secs := int64((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Gate 准入闸门，可并发使用
type Gate struct {
	registry *ratelimit.Registry
	logger   clog.Logger
	requests metrics.Counter
}

// NewGate 创建准入闸门
func NewGate(registry *ratelimit.Registry, opts ...Option) (*Gate, error) {
	if registry == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "admission: registry is required")
	}

	o := newOptions(opts)
	requests, err := o.meter.Counter(MetricRequests, "Number of admission decisions")
	if err != nil {
		return nil, xerrors.Wrap(err, "create requests counter")
	}

	return &Gate{registry: registry, logger: o.logger, requests: requests}, nil
}

// Enabled 限流总开关是否打开
func (g *Gate) Enabled() bool {
	return g.registry.Policy().Enabled()
}

// SetEnabled 切换限流总开关，关闭后所有请求直接放行
func (g *Gate) SetEnabled(enabled bool) {
	if g.Enabled() == enabled {
		return
	}
	g.registry.Policy().SetEnabled(enabled)
	g.logger.Info("rate limiting switched", clog.Bool("enabled", enabled))
}

// Admit 为 client 的一次 class 类请求做准入决策
func (g *Gate) Admit(ctx context.Context, client string, class ratelimit.EndpointClass) Decision {
	if !g.Enabled() {
		g.record(ctx, class, DecisionDisabled)
		return Decision{Allowed: true, Remaining: -1, Class: class}
	}

	bucket, err := g.registry.Resolve(ctx, client, class)
	if err != nil {
		g.logger.WarnContext(ctx, "rate limiter unavailable, admitting request",
			clog.String("client", client),
			clog.String("class", string(class)),
			clog.ErrorWithKind(err))
		g.record(ctx, class, DecisionFailOpen)
		return Decision{Allowed: true, Remaining: -1, Class: class}
	}

	if bucket.TryConsume() {
		g.record(ctx, class, DecisionAllow)
		return Decision{Allowed: true, Remaining: bucket.Remaining(), Class: class}
	}

	d := Decision{
		Allowed:    false,
		Remaining:  bucket.Remaining(),
		RetryAfter: bucket.RetryAfter(),
		Class:      class,
	}
	g.record(ctx, class, DecisionReject)
	g.logger.DebugContext(ctx, "request rejected",
		clog.String("client", client),
		clog.String("class", string(class)),
		clog.Duration("retry_after", d.RetryAfter))
	return d
}

func (g *Gate) record(ctx context.Context, class ratelimit.EndpointClass, decision string) {
	g.requests.Inc(ctx, metrics.L(metrics.LabelClass, string(class)), metrics.L(metrics.LabelDecision, decision))
	oteltrace.SpanFromContext(ctx).SetAttributes(
		attribute.String(trace.AttrClientClass, string(class)),
		attribute.String(trace.AttrDecision, decision))
}

// Classify 按请求路径确定端点类别
//
//	/api/auth/**  -> AUTH
//	/api/ussd/**  -> USSD
//	其他          -> GENERAL
func Classify(path string) ratelimit.EndpointClass {
	switch {
	case hasSegmentPrefix(path, "/api/auth"):
		return ratelimit.ClassAuth
	case hasSegmentPrefix(path, "/api/ussd"):
		return ratelimit.ClassUSSD
	default:
		return ratelimit.ClassGeneral
	}
}

// hasSegmentPrefix 按路径段匹配前缀，"/api/authors" 不匹配 "/api/auth"
func hasSegmentPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/'
}

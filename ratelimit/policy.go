package ratelimit

import (
	"sync/atomic"
	"time"

	"github.com/youthconnect/gatekeeper/xerrors"
)

// DefaultRefillPeriod 默认补充周期
const DefaultRefillPeriod = time.Minute

// Rule 单个端点类别的限流规则
type Rule struct {
	Capacity     int64         // 桶容量
	RefillTokens int64         // 每个周期补充的令牌数
	RefillPeriod time.Duration // 补充周期
	Burst        int64         // 保留字段，不参与容量计算
}

// PerMinute 返回容量与每分钟补充数都为 n 的规则
func PerMinute(n int64) Rule {
	return Rule{Capacity: n, RefillTokens: n, RefillPeriod: DefaultRefillPeriod}
}

// FullRefill 返回空桶补满所需的时间，即 ceil(Capacity/RefillTokens) 个补充周期
func (r Rule) FullRefill() time.Duration {
	if r.RefillTokens < 1 {
		return 0
	}
	periods := (r.Capacity + r.RefillTokens - 1) / r.RefillTokens
	return time.Duration(periods) * r.RefillPeriod
}

func (r Rule) validate() error {
	if r.Capacity < 1 {
		return xerrors.Wrapf(ErrInvalidRule, "capacity must be >= 1, got %d", r.Capacity)
	}
	if r.RefillTokens < 1 {
		return xerrors.Wrapf(ErrInvalidRule, "refill tokens must be >= 1, got %d", r.RefillTokens)
	}
	if r.RefillPeriod <= 0 {
		return xerrors.Wrapf(ErrInvalidRule, "refill period must be positive, got %s", r.RefillPeriod)
	}
	return nil
}

// DefaultRules 返回默认规则表
func DefaultRules() map[EndpointClass]Rule {
	return map[EndpointClass]Rule{
		ClassAuth:    PerMinute(20),
		ClassUSSD:    PerMinute(50),
		ClassGeneral: PerMinute(100),
	}
}

// Policy 类别到规则的静态映射，加上一个全局开关
//
// 规则在创建后不可变；开关可以在运行时通过 SetEnabled 切换。
type Policy struct {
	enabled atomic.Bool
	rules   map[EndpointClass]Rule
}

// NewPolicy 创建限流策略，rules 中缺失的类别使用默认规则
func NewPolicy(enabled bool, rules map[EndpointClass]Rule) (*Policy, error) {
	merged := DefaultRules()
	for class, rule := range rules {
		if !class.Valid() {
			return nil, xerrors.Wrapf(ErrUnknownClass, "class %q", class)
		}
		merged[class] = rule
	}
	for class, rule := range merged {
		if err := rule.validate(); err != nil {
			return nil, xerrors.Wrapf(err, "class %s", class)
		}
	}

	p := &Policy{rules: merged}
	p.enabled.Store(enabled)
	return p, nil
}

// Enabled 全局开关，关闭时所有请求直接放行
func (p *Policy) Enabled() bool {
	return p.enabled.Load()
}

// SetEnabled 运行时切换全局开关
func (p *Policy) SetEnabled(enabled bool) {
	p.enabled.Store(enabled)
}

// Rule 返回类别对应的规则
func (p *Policy) Rule(class EndpointClass) (Rule, error) {
	rule, ok := p.rules[class]
	if !ok {
		return Rule{}, xerrors.Wrapf(ErrUnknownClass, "class %q", class)
	}
	return rule, nil
}

// LongestFullRefill 返回所有规则中空桶补满所需的最长时间
func (p *Policy) LongestFullRefill() time.Duration {
	var longest time.Duration
	for _, rule := range p.rules {
		if d := rule.FullRefill(); d > longest {
			longest = d
		}
	}
	return longest
}

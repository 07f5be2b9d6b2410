// Package breaker 为网关的下游调用提供按目标服务隔离的熔断器。
//
// 每个下游目标（如 "auth-service"）拥有独立的熔断器，使用基于计数的滑动窗口
// 记录最近 SlidingWindowSize 次调用结果：
//
//   - CLOSED：记录每个结果；窗口内调用数达到 MinimumCalls 后，
//     失败率 >= FailureRateThreshold 即转为 OPEN
//   - OPEN：直接拒绝（ErrOpenState）；等待 WaitDurationInOpen 后，
//     下一次调用尝试转为 HALF_OPEN
//   - HALF_OPEN：最多放行 PermittedCallsInHalfOpen 个试探调用，
//     任一失败回到 OPEN，全部成功回到 CLOSED 并清空窗口
//
// ## 基本使用
//
//	registry, _ := breaker.NewRegistry(&breaker.Config{
//		Default: breaker.DefaultPolicy(),
//		Services: map[string]breaker.Policy{
//			"ai-service": {WaitDurationInOpen: 30 * time.Second},
//		},
//	}, breaker.WithLogger(logger), breaker.WithMeter(meter))
//
//	cb, _ := registry.Get("ai-service")
//	err := cb.Execute(func() error {
//		return callAIService(ctx)
//	})
//	if errors.Is(err, breaker.ErrOpenState) {
//		// 走降级
//	}
//
// 被忽略的错误（默认是 xerrors.KindInvalidArgument 与调用方取消）不计入失败率。
package breaker

import (
	"time"

	"github.com/youthconnect/gatekeeper/xerrors"
)

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText 管理接口以字符串形式输出状态
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析 closed/open/half_open
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "open":
		*s = StateOpen
	case "half_open":
		*s = StateHalfOpen
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "breaker: unknown state %q", text)
	}
	return nil
}

// Outcome 一次调用的结果
type Outcome int

const (
	// Success 成功
	Success Outcome = iota
	// Failure 失败，计入失败率
	Failure
	// Ignored 不计入窗口，半开状态下归还试探名额
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Policy 熔断策略
type Policy struct {
	// FailureRateThreshold 失败率阈值，百分比 (0, 100]，默认 50
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold" json:"failure_rate_threshold"`

	// SlidingWindowSize 滑动窗口大小（最近 N 次调用），默认 10
	SlidingWindowSize int `mapstructure:"sliding_window_size" json:"sliding_window_size"`

	// MinimumCalls 计算失败率前窗口内至少需要的调用数，默认 5，超过窗口大小时取窗口大小
	MinimumCalls int `mapstructure:"minimum_number_of_calls" json:"minimum_number_of_calls"`

	// WaitDurationInOpen 打开状态持续时间，默认 10s
	WaitDurationInOpen time.Duration `mapstructure:"wait_duration_in_open_state" json:"wait_duration_in_open_state"`

	// PermittedCallsInHalfOpen 半开状态允许的试探调用数，默认 3
	PermittedCallsInHalfOpen int `mapstructure:"permitted_number_of_calls_in_half_open_state" json:"permitted_number_of_calls_in_half_open_state"`
}

// DefaultPolicy 返回默认策略
func DefaultPolicy() Policy {
	return Policy{
		FailureRateThreshold:     50,
		SlidingWindowSize:        10,
		MinimumCalls:             5,
		WaitDurationInOpen:       10 * time.Second,
		PermittedCallsInHalfOpen: 3,
	}
}

func (p Policy) validate() error {
	if p.FailureRateThreshold <= 0 || p.FailureRateThreshold > 100 {
		return xerrors.Wrapf(ErrInvalidPolicy, "failure_rate_threshold must be in (0, 100], got %v", p.FailureRateThreshold)
	}
	if p.SlidingWindowSize < 1 {
		return xerrors.Wrapf(ErrInvalidPolicy, "sliding_window_size must be >= 1, got %d", p.SlidingWindowSize)
	}
	if p.MinimumCalls < 1 {
		return xerrors.Wrapf(ErrInvalidPolicy, "minimum_number_of_calls must be >= 1, got %d", p.MinimumCalls)
	}
	if p.WaitDurationInOpen <= 0 {
		return xerrors.Wrapf(ErrInvalidPolicy, "wait_duration_in_open_state must be positive, got %s", p.WaitDurationInOpen)
	}
	if p.PermittedCallsInHalfOpen < 1 {
		return xerrors.Wrapf(ErrInvalidPolicy, "permitted_number_of_calls_in_half_open_state must be >= 1, got %d", p.PermittedCallsInHalfOpen)
	}
	return nil
}

// merge 用 override 中的非零字段覆盖 p
func (p Policy) merge(override Policy) Policy {
	if override.FailureRateThreshold > 0 {
		p.FailureRateThreshold = override.FailureRateThreshold
	}
	if override.SlidingWindowSize > 0 {
		p.SlidingWindowSize = override.SlidingWindowSize
	}
	if override.MinimumCalls > 0 {
		p.MinimumCalls = override.MinimumCalls
	}
	if override.WaitDurationInOpen > 0 {
		p.WaitDurationInOpen = override.WaitDurationInOpen
	}
	if override.PermittedCallsInHalfOpen > 0 {
		p.PermittedCallsInHalfOpen = override.PermittedCallsInHalfOpen
	}
	return p
}

// Config 熔断器组件配置
//
//	breaker:
//	  default:
//	    failure_rate_threshold: 50
//	    sliding_window_size: 10
//	    minimum_number_of_calls: 5
//	    wait_duration_in_open_state: 10s
//	    permitted_number_of_calls_in_half_open_state: 3
//	  services:
//	    ai-service:
//	      wait_duration_in_open_state: 30s
type Config struct {
	// Default 默认策略，零值字段取 DefaultPolicy
	Default Policy `mapstructure:"default"`

	// Services 按目标服务名覆盖默认策略中的非零字段
	Services map[string]Policy `mapstructure:"services"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Default:  DefaultPolicy(),
		Services: make(map[string]Policy),
	}
}

// PolicyFor 返回目标服务的生效策略
func (c *Config) PolicyFor(name string) Policy {
	p := DefaultPolicy().merge(c.Default)
	if override, ok := c.Services[name]; ok {
		p = p.merge(override)
	}
	return p
}

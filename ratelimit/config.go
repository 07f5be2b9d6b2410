package ratelimit

import (
	"time"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// Mode 令牌桶实现
type Mode string

const (
	// ModeInterval 整周期补充（默认）
	ModeInterval Mode = "interval"
	// ModeSmooth 连续补充，基于 golang.org/x/time/rate
	ModeSmooth Mode = "smooth"
)

// Config 限流配置
//
//	ratelimit:
//	  enabled: true
//	  mode: interval
//	  idle_timeout: 5m
//	  rules:
//	    auth:
//	      requests_per_minute: 20
//	    ussd:
//	      requests_per_minute: 50
//	      burst_capacity: 80
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	Mode    Mode `mapstructure:"mode"`

	// IdleTimeout 令牌桶空闲淘汰时间，为 0 时取最长补满时间的 5 倍，不得小于最长补满时间
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// MaxEntries 注册表最多保留的令牌桶数，为 0 时不限制。
	// 按容量淘汰可能移除仍在使用的已耗尽令牌桶，该客户端随后拿到一个满桶，
	// 这与空闲淘汰不同，是可观察的；只在内存受限时设置
	MaxEntries int `mapstructure:"max_entries"`

	// Rules 键为端点类别名（大小写不敏感）
	Rules map[string]RuleConfig `mapstructure:"rules"`
}

// RuleConfig 单个类别的规则配置
//
// RequestsPerMinute 大于 0 时优先生效，等价于容量与每分钟补充数都为该值；
// 否则使用 Capacity/RefillTokens/RefillPeriod，缺失项取默认规则。
type RuleConfig struct {
	RequestsPerMinute int64         `mapstructure:"requests_per_minute"`
	Capacity          int64         `mapstructure:"capacity"`
	RefillTokens      int64         `mapstructure:"refill_tokens"`
	RefillPeriod      time.Duration `mapstructure:"refill_period"`
	Burst             int64         `mapstructure:"burst_capacity"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Mode:    ModeInterval,
	}
}

// Policy 根据配置构建限流策略
//
// burst_capacity 只做保留，与容量不一致时记录一条警告。
func (c *Config) Policy(logger clog.Logger) (*Policy, error) {
	if logger == nil {
		logger = clog.Discard()
	}

	defaults := DefaultRules()
	rules := make(map[EndpointClass]Rule, len(c.Rules))
	for name, rc := range c.Rules {
		class, err := ParseClass(name)
		if err != nil {
			return nil, xerrors.Wrapf(err, "rule %q", name)
		}

		rule := defaults[class]
		if rc.RequestsPerMinute > 0 {
			rule = PerMinute(rc.RequestsPerMinute)
		} else {
			if rc.Capacity > 0 {
				rule.Capacity = rc.Capacity
			}
			if rc.RefillTokens > 0 {
				rule.RefillTokens = rc.RefillTokens
			}
			if rc.RefillPeriod > 0 {
				rule.RefillPeriod = rc.RefillPeriod
			}
		}
		rule.Burst = rc.Burst

		if rule.Burst > 0 && rule.Burst != rule.Capacity {
			logger.Warn("burst_capacity is not applied, bucket capacity stays at requests per period",
				clog.String("class", string(class)),
				clog.Int64("burst_capacity", rule.Burst),
				clog.Int64("capacity", rule.Capacity))
		}
		rules[class] = rule
	}

	return NewPolicy(c.Enabled, rules)
}

func (c *Config) mode() (Mode, error) {
	switch c.Mode {
	case "", ModeInterval:
		return ModeInterval, nil
	case ModeSmooth:
		return ModeSmooth, nil
	}
	return "", xerrors.Wrapf(ErrInvalidMode, "mode %q", c.Mode)
}

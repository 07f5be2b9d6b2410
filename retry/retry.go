// Package retry 为下游调用提供指数退避重试。
//
// 第 1 次尝试立即执行；可重试的失败之后，第 k 次尝试前等待
// BaseDelay × Multiplier^(k-2)，最多 MaxAttempts 次。参数错误、安全错误、
// 熔断短路等不可重试的错误立即返回（见 xerrors.IsRetryable）。
//
//	executor, _ := retry.New(&retry.Config{
//		MaxAttempts: 3,
//		BaseDelay:   time.Second,
//		Multiplier:  2,
//	}, retry.WithLogger(logger))
//
//	err := executor.Execute(ctx, func(ctx context.Context, attempt int) error {
//		return callUserService(ctx)
//	})
package retry

import (
	"time"

	"github.com/youthconnect/gatekeeper/xerrors"
)

// Config 重试配置
//
//	retry:
//	  max_attempts: 3
//	  wait_duration: 1s
//	  exponential_backoff_multiplier: 2
//	  max_wait_duration: 30s
type Config struct {
	// MaxAttempts 最大尝试次数（含第一次），默认 3
	MaxAttempts int `mapstructure:"max_attempts"`

	// BaseDelay 第一次重试前的等待时间，默认 1s
	BaseDelay time.Duration `mapstructure:"wait_duration"`

	// Multiplier 退避倍数，默认 2
	Multiplier float64 `mapstructure:"exponential_backoff_multiplier"`

	// MaxDelay 单次等待上限，默认 30s
	MaxDelay time.Duration `mapstructure:"max_wait_duration"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

func (c *Config) setDefaults() {
	def := DefaultConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = def.Multiplier
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = def.MaxDelay
	}
}

func (c *Config) validate() error {
	if c.MaxAttempts < 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "retry: max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay < 0 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "retry: wait_duration must not be negative, got %s", c.BaseDelay)
	}
	if c.Multiplier < 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "retry: multiplier must be >= 1, got %v", c.Multiplier)
	}
	if c.MaxDelay < c.BaseDelay {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "retry: max_wait_duration %s < wait_duration %s", c.MaxDelay, c.BaseDelay)
	}
	return nil
}

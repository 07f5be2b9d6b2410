// Package timelimit 为单次下游调用设置超时上限。
//
// 超时后立即返回 ErrTimeoutExceeded（KindTimeout），被调用方收到的 ctx 同时被取消；
// 调用方不会再等待，迟到的结果被丢弃。
package timelimit

import (
	"errors"
	"time"

	"github.com/youthconnect/gatekeeper/xerrors"
)

// ErrTimeoutExceeded 调用超出时间上限
var ErrTimeoutExceeded = xerrors.WithKind(errors.New("time limit exceeded"), xerrors.KindTimeout)

// Config 超时配置
//
//	timelimit:
//	  default: 5s
//	  services:
//	    ai-service: 30s
//	    ussd-service: 2s
type Config struct {
	// Default 未单独配置的服务使用的超时，默认 5s
	Default time.Duration `mapstructure:"default"`

	// Services 按目标服务覆盖超时
	Services map[string]time.Duration `mapstructure:"services"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Default: 5 * time.Second,
		Services: map[string]time.Duration{
			"ai-service":   30 * time.Second,
			"ussd-service": 2 * time.Second,
		},
	}
}

// For 返回目标服务的超时
func (c *Config) For(target string) time.Duration {
	if d, ok := c.Services[target]; ok {
		return d
	}
	return c.Default
}

func (c *Config) validate() error {
	if c.Default <= 0 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "timelimit: default must be positive, got %s", c.Default)
	}
	for name, d := range c.Services {
		if d <= 0 {
			return xerrors.Wrapf(xerrors.ErrInvalidInput, "timelimit: %s must be positive, got %s", name, d)
		}
	}
	return nil
}

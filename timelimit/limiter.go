package timelimit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// MetricTimeouts 超时次数 (Counter)
const MetricTimeouts = "timelimit_timeouts_total"

// Limiter 按目标服务施加超时
type Limiter struct {
	cfg      Config
	logger   clog.Logger
	timeouts metrics.Counter
}

// New 创建 Limiter，cfg 为 nil 时使用 DefaultConfig
func New(cfg *Config, opts ...Option) (*Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := Config{Default: cfg.Default, Services: maps.Clone(cfg.Services)}
	if c.Default == 0 {
		c.Default = DefaultConfig().Default
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	timeouts, err := o.meter.Counter(MetricTimeouts, "Number of downstream calls that exceeded their time limit")
	if err != nil {
		return nil, xerrors.Wrap(err, "create timeouts counter")
	}

	return &Limiter{cfg: c, logger: o.logger, timeouts: timeouts}, nil
}

// For 返回目标服务的超时
func (l *Limiter) For(target string) time.Duration {
	return l.cfg.For(target)
}

// ExecuteFor 以目标服务的超时执行 op
func (l *Limiter) ExecuteFor(ctx context.Context, target string, op func(ctx context.Context) error) error {
	return l.execute(ctx, target, l.For(target), op)
}

// Execute 以超时 d 执行 op
//
// op 在独立 goroutine 中运行，收到的 ctx 在超时或返回时被取消。
// 超时后立即返回 ErrTimeoutExceeded，op 的迟到结果被丢弃。
// 父 ctx 先结束时返回父 ctx 的错误。
func (l *Limiter) Execute(ctx context.Context, d time.Duration, op func(ctx context.Context) error) error {
	return l.execute(ctx, "", d, op)
}

func (l *Limiter) execute(ctx context.Context, target string, d time.Duration, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	// 缓冲为 1，超时后 goroutine 仍能写入并退出
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("timelimit: panic in operation: %v", r)
			}
		}()
		done <- op(callCtx)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return l.timedOut(ctx, target, d)
		}
		return err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return l.timedOut(ctx, target, d)
	}
}

func (l *Limiter) timedOut(ctx context.Context, target string, d time.Duration) error {
	l.timeouts.Inc(ctx, metrics.L(metrics.LabelService, target))
	l.logger.WarnContext(ctx, "call exceeded time limit",
		clog.String("service", target),
		clog.Duration("timeout", d))
	return xerrors.Wrapf(ErrTimeoutExceeded, "%s after %s", orUnnamed(target), d)
}

func orUnnamed(target string) string {
	if target == "" {
		return "call"
	}
	return target
}

package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// MetricAttempts 尝试次数 (Counter)
const MetricAttempts = "retry_attempts_total"

// Operation 被重试的操作，attempt 从 1 开始
type Operation func(ctx context.Context, attempt int) error

// Executor 重试执行器，可并发使用
type Executor struct {
	cfg      Config
	logger   clog.Logger
	attempts metrics.Counter

	// newTimer 为 nil 时使用 backoff 默认计时器，测试中替换为假计时器
	newTimer func() backoff.Timer
}

// New 创建重试执行器
func New(cfg *Config, opts ...Option) (*Executor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	attempts, err := o.meter.Counter(MetricAttempts, "Number of attempts made by the retry executor")
	if err != nil {
		return nil, xerrors.Wrap(err, "create attempts counter")
	}

	return &Executor{cfg: c, logger: o.logger, attempts: attempts}, nil
}

// Config 返回生效配置
func (e *Executor) Config() Config {
	return e.cfg
}

// Delay 返回第 attempt 次尝试前的等待时间
func (e *Executor) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := float64(e.cfg.BaseDelay) * math.Pow(e.cfg.Multiplier, float64(attempt-2))
	if d > float64(e.cfg.MaxDelay) {
		return e.cfg.MaxDelay
	}
	return time.Duration(d)
}

func (e *Executor) newBackOff(ctx context.Context) backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          e.cfg.Multiplier,
		MaxInterval:         e.cfg.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.MaxAttempts-1)), ctx)
}

// Execute 执行 op，直到成功、遇到不可重试错误、用完尝试次数或 ctx 结束
//
// 返回最后一次尝试的错误；ctx 在等待期间结束时，返回值同时包含最后一次错误与 ctx 错误。
func (e *Executor) Execute(ctx context.Context, op Operation) error {
	var (
		attempt int
		lastErr error
	)

	operation := func() error {
		attempt++
		err := op(ctx, attempt)
		lastErr = err

		e.attempts.Inc(ctx, metrics.L(metrics.LabelOutcome, outcome(err)))
		if err != nil && !xerrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		e.logger.WarnContext(ctx, "attempt failed, retrying",
			clog.Int("attempt", attempt),
			clog.Int("max_attempts", e.cfg.MaxAttempts),
			clog.Duration("delay", delay),
			clog.ErrorWithKind(err))
	}

	var timer backoff.Timer
	if e.newTimer != nil {
		timer = e.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, e.newBackOff(ctx), notify, timer)
	if err != nil && lastErr != nil && !errors.Is(err, lastErr) {
		return errors.Join(lastErr, err)
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	return metrics.OutcomeError
}

package resilience

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/youthconnect/gatekeeper/breaker"
	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/retry"
	"github.com/youthconnect/gatekeeper/timelimit"
	"github.com/youthconnect/gatekeeper/trace"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// Orchestrator 组合熔断器、重试与超时，可并发使用
type Orchestrator struct {
	breakers *breaker.Registry
	retrier  *retry.Executor
	limiter  *timelimit.Limiter

	logger  clog.Logger
	tracer  oteltrace.Tracer
	inst    *instruments
	now     func() time.Time
	message string
}

// New 创建 Orchestrator，三个组件都必须提供
func New(breakers *breaker.Registry, retrier *retry.Executor, limiter *timelimit.Limiter, opts ...Option) (*Orchestrator, error) {
	if breakers == nil || retrier == nil || limiter == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "resilience: breakers, retrier and limiter are required")
	}

	o := newOptions(opts)
	inst, err := newInstruments(o.meter)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		breakers: breakers,
		retrier:  retrier,
		limiter:  limiter,
		logger:   o.logger,
		tracer:   o.tracerProvider.Tracer(instrumentationName),
		inst:     inst,
		now:      o.now,
		message:  o.message,
	}, nil
}

// Breakers 返回熔断器注册表
func (o *Orchestrator) Breakers() *breaker.Registry {
	return o.breakers
}

// Unavailable 构造 target 的不可用错误
func (o *Orchestrator) Unavailable(target string, cause error) *Unavailable {
	return &Unavailable{
		Service:   target,
		Message:   o.message,
		Timestamp: o.now(),
		Cause:     cause,
	}
}

// Invoke 在 target 的弹性策略下执行 op
//
// 成功时返回 op 的结果；任何终止失败都交给 fallback。fallback 为 nil 或失败时
// 返回 *Unavailable。返回的非 nil 错误一定是 *Unavailable。
func Invoke[T any](ctx context.Context, o *Orchestrator, target string, op Operation[T], fallback Fallback[T]) (T, error) {
	var zero T

	ctx, span := o.tracer.Start(ctx, trace.SpanNameInvoke(target),
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(attribute.String(trace.AttrTarget, target)))
	defer span.End()

	start := time.Now()
	var (
		result   T
		attempts int
	)

	cause := o.retrier.Execute(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		v, err := attemptOnce(ctx, o, target, op)
		if err == nil {
			result = v
		}
		return err
	})

	span.SetAttributes(attribute.Int(trace.AttrAttempts, attempts))
	o.inst.duration.Record(ctx, time.Since(start).Seconds(), metrics.L(metrics.LabelService, target))

	if cause == nil {
		span.SetStatus(codes.Ok, "")
		o.inst.calls.Inc(ctx, metrics.L(metrics.LabelService, target), metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
		return result, nil
	}

	span.RecordError(cause)
	span.SetAttributes(attribute.Bool(trace.AttrFallback, true))
	if cb, err := o.breakers.Get(target); err == nil {
		span.SetAttributes(attribute.String(trace.AttrState, cb.State().String()))
	}

	reason := xerrors.KindOf(cause).String()
	o.inst.fallbacks.Inc(ctx, metrics.L(metrics.LabelService, target), metrics.L(LabelReason, reason))
	o.logger.WarnContext(ctx, "downstream call failed, using fallback",
		clog.String("service", target),
		clog.Int("attempts", attempts),
		clog.String("reason", reason),
		clog.Error(cause))

	if fallback != nil {
		v, err := fallback(ctx, cause)
		if err == nil {
			span.SetStatus(codes.Ok, "fallback")
			o.inst.calls.Inc(ctx, metrics.L(metrics.LabelService, target), metrics.L(metrics.LabelOutcome, outcomeFallback))
			return v, nil
		}
		o.logger.ErrorContext(ctx, "fallback failed",
			clog.String("service", target),
			clog.Error(err))
		cause = errors.Join(cause, err)
	}

	span.SetStatus(codes.Error, "service unavailable")
	o.inst.calls.Inc(ctx, metrics.L(metrics.LabelService, target), metrics.L(metrics.LabelOutcome, outcomeUnavailable))
	return zero, o.Unavailable(target, cause)
}

// attemptOnce 一次尝试：先取熔断许可，再在超时限制下执行 op
func attemptOnce[T any](ctx context.Context, o *Orchestrator, target string, op Operation[T]) (T, error) {
	var zero T

	cb, err := o.breakers.Get(target)
	if err != nil {
		return zero, err
	}
	done, err := cb.Allow()
	if err != nil {
		return zero, err
	}

	// v 只在 op 按时返回后读取，超时后迟到的写入无人观察
	var v T
	err = o.limiter.ExecuteFor(ctx, target, func(ctx context.Context) error {
		var opErr error
		v, opErr = op(ctx)
		return opErr
	})
	done(cb.Classify(err))
	if err != nil {
		return zero, err
	}
	return v, nil
}

package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/youthconnect/gatekeeper/breaker"
	"github.com/youthconnect/gatekeeper/retry"
	"github.com/youthconnect/gatekeeper/timelimit"
	"github.com/youthconnect/gatekeeper/xerrors"
)

const target = "user-service"

var errDownstream = errors.New("connection reset by peer")

type fixture struct {
	orch     *Orchestrator
	breakers *breaker.Registry
	spans    *tracetest.SpanRecorder
}

func newFixture(t *testing.T, policy breaker.Policy, maxAttempts int, timeout time.Duration) *fixture {
	t.Helper()

	breakers, err := breaker.NewRegistry(&breaker.Config{Default: policy})
	require.NoError(t, err)
	retrier, err := retry.New(&retry.Config{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		Multiplier:  1,
		MaxDelay:    time.Millisecond,
	})
	require.NoError(t, err)
	limiter, err := timelimit.New(&timelimit.Config{Default: timeout})
	require.NoError(t, err)

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orch, err := New(breakers, retrier, limiter,
		WithTracerProvider(tp),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)

	return &fixture{orch: orch, breakers: breakers, spans: spans}
}

func lenientPolicy() breaker.Policy {
	return breaker.Policy{
		FailureRateThreshold:     50,
		SlidingWindowSize:        100,
		MinimumCalls:             100,
		WaitDurationInOpen:       time.Minute,
		PermittedCallsInHalfOpen: 1,
	}
}

func failing(calls *atomic.Int32) Operation[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", errDownstream
	}
}

func staticFallback(value string, causes *[]error) Fallback[string] {
	return func(ctx context.Context, cause error) (string, error) {
		*causes = append(*causes, cause)
		return value, nil
	}
}

func TestInvoke(t *testing.T) {
	t.Run("成功时返回真实结果", func(t *testing.T) {
		f := newFixture(t, lenientPolicy(), 3, time.Second)

		got, err := Invoke(context.Background(), f.orch, target, func(ctx context.Context) (string, error) {
			return "profile-42", nil
		}, nil)

		require.NoError(t, err)
		assert.Equal(t, "profile-42", got)

		cb, _ := f.breakers.Get(target)
		assert.Equal(t, 1, cb.Metrics().Calls)
	})

	t.Run("重试耗尽后恰好执行 3 次并返回 fallback", func(t *testing.T) {
		f := newFixture(t, lenientPolicy(), 3, time.Second)
		var calls atomic.Int32
		var causes []error

		got, err := Invoke(context.Background(), f.orch, target, failing(&calls), staticFallback("cached", &causes))

		require.NoError(t, err)
		assert.Equal(t, "cached", got)
		assert.Equal(t, int32(3), calls.Load())
		require.Len(t, causes, 1)
		assert.ErrorIs(t, causes[0], errDownstream)
	})

	t.Run("熔断打开时不执行 op 直接 fallback", func(t *testing.T) {
		f := newFixture(t, breaker.Policy{
			FailureRateThreshold:     50,
			SlidingWindowSize:        4,
			MinimumCalls:             4,
			WaitDurationInOpen:       time.Minute,
			PermittedCallsInHalfOpen: 1,
		}, 3, time.Second)

		cb, err := f.breakers.Get(target)
		require.NoError(t, err)
		for i := 0; i < 4; i++ {
			_ = cb.Execute(func() error { return errDownstream })
		}
		require.Equal(t, breaker.StateOpen, cb.State())

		var calls atomic.Int32
		var causes []error
		got, err := Invoke(context.Background(), f.orch, target, failing(&calls), staticFallback("degraded", &causes))

		require.NoError(t, err)
		assert.Equal(t, "degraded", got)
		assert.Zero(t, calls.Load())
		require.Len(t, causes, 1)
		assert.ErrorIs(t, causes[0], breaker.ErrOpenState)
	})

	t.Run("熔断在重试过程中打开后停止重试", func(t *testing.T) {
		f := newFixture(t, breaker.Policy{
			FailureRateThreshold:     50,
			SlidingWindowSize:        2,
			MinimumCalls:             2,
			WaitDurationInOpen:       time.Minute,
			PermittedCallsInHalfOpen: 1,
		}, 5, time.Second)
		var calls atomic.Int32
		var causes []error

		_, err := Invoke(context.Background(), f.orch, target, failing(&calls), staticFallback("degraded", &causes))

		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
		require.Len(t, causes, 1)
		assert.True(t, breaker.IsRejected(causes[0]))
	})

	t.Run("没有 fallback 时返回 Unavailable 且不暴露原始错误", func(t *testing.T) {
		f := newFixture(t, lenientPolicy(), 2, time.Second)
		var calls atomic.Int32

		_, err := Invoke(context.Background(), f.orch, target, failing(&calls), nil)

		require.Error(t, err)
		var unavailable *Unavailable
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, target, unavailable.Service)
		assert.Equal(t, DefaultMessage, unavailable.Message)
		assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), unavailable.Timestamp)
		assert.ErrorIs(t, unavailable.Cause, errDownstream)
		assert.NotErrorIs(t, err, errDownstream)
	})

	t.Run("fallback 失败时返回 Unavailable", func(t *testing.T) {
		f := newFixture(t, lenientPolicy(), 1, time.Second)
		var calls atomic.Int32
		errCache := errors.New("cache miss")

		_, err := Invoke(context.Background(), f.orch, target, failing(&calls),
			func(ctx context.Context, cause error) (string, error) { return "", errCache })

		var unavailable *Unavailable
		require.ErrorAs(t, err, &unavailable)
		assert.ErrorIs(t, unavailable.Cause, errCache)
		assert.NotErrorIs(t, err, errCache)
	})

	t.Run("不可重试的错误只执行一次", func(t *testing.T) {
		f := newFixture(t, lenientPolicy(), 3, time.Second)
		var calls atomic.Int32
		var causes []error

		_, err := Invoke(context.Background(), f.orch, target, func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", xerrors.WithKind(errors.New("malformed id"), xerrors.KindInvalidArgument)
		}, staticFallback("", &causes))

		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())

		cb, _ := f.breakers.Get(target)
		assert.Zero(t, cb.Metrics().Calls, "参数错误不计入熔断窗口")
	})

	t.Run("每次尝试单独超时并重试", func(t *testing.T) {
		f := newFixture(t, lenientPolicy(), 2, 20*time.Millisecond)
		var calls atomic.Int32
		var causes []error

		_, err := Invoke(context.Background(), f.orch, target, func(ctx context.Context) (string, error) {
			calls.Add(1)
			<-ctx.Done()
			return "too late", nil
		}, staticFallback("timeout-fallback", &causes))

		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
		require.Len(t, causes, 1)
		assert.ErrorIs(t, causes[0], timelimit.ErrTimeoutExceeded)

		cb, _ := f.breakers.Get(target)
		assert.Equal(t, 2, cb.Metrics().Failures)
	})

	t.Run("记录调用 Span", func(t *testing.T) {
		f := newFixture(t, lenientPolicy(), 2, time.Second)
		var calls atomic.Int32
		var causes []error

		_, _ = Invoke(context.Background(), f.orch, target, failing(&calls), staticFallback("x", &causes))

		ended := f.spans.Ended()
		require.Len(t, ended, 1)
		span := ended[0]
		assert.Equal(t, "resilience.invoke user-service", span.Name())

		attrs := map[string]any{}
		for _, kv := range span.Attributes() {
			attrs[string(kv.Key)] = kv.Value.AsInterface()
		}
		assert.Equal(t, target, attrs["gatekeeper.target"])
		assert.Equal(t, int64(2), attrs["gatekeeper.attempts"])
		assert.Equal(t, true, attrs["gatekeeper.fallback"])
	})
}

func TestNew(t *testing.T) {
	_, err := New(nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))
}

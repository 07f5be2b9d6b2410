package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youthconnect/gatekeeper/xerrors"
)

// fakeTimer 立即触发，只记录请求的等待时间
type fakeTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	t.c <- time.Time{}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

func newTestExecutor(t *testing.T, cfg *Config) (*Executor, *fakeTimer) {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	timer := newFakeTimer()
	e.newTimer = func() backoff.Timer { return timer }
	return e, timer
}

var errDownstream = errors.New("connection refused")

func TestExecute(t *testing.T) {
	t.Run("持续失败时恰好尝试 MaxAttempts 次", func(t *testing.T) {
		e, timer := newTestExecutor(t, &Config{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2})

		var calls []int
		err := e.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			calls = append(calls, attempt)
			return errDownstream
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, errDownstream)
		assert.Equal(t, []int{1, 2, 3}, calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.Delays())
	})

	t.Run("成功后停止重试", func(t *testing.T) {
		e, timer := newTestExecutor(t, nil)

		attempts := 0
		err := e.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			attempts = attempt
			if attempt < 2 {
				return xerrors.WithKind(errDownstream, xerrors.KindRetryable)
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, []time.Duration{time.Second}, timer.Delays())
	})

	t.Run("不可重试的错误立即返回", func(t *testing.T) {
		cases := map[string]error{
			"参数错误": xerrors.WithKind(errors.New("bad payload"), xerrors.KindInvalidArgument),
			"安全错误": xerrors.WithKind(errors.New("token expired"), xerrors.KindSecurity),
			"熔断短路": xerrors.WithKind(errors.New("circuit open"), xerrors.KindCircuitOpen),
		}
		for name, want := range cases {
			t.Run(name, func(t *testing.T) {
				e, timer := newTestExecutor(t, nil)
				calls := 0
				err := e.Execute(context.Background(), func(ctx context.Context, attempt int) error {
					calls++
					return want
				})
				assert.Same(t, want, err)
				assert.Equal(t, 1, calls)
				assert.Empty(t, timer.Delays())
			})
		}
	})

	t.Run("超时错误可以重试", func(t *testing.T) {
		e, _ := newTestExecutor(t, &Config{MaxAttempts: 2})
		calls := 0
		err := e.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			calls++
			return xerrors.WithKind(errors.New("slow"), xerrors.KindTimeout)
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("MaxAttempts 为 1 时不重试", func(t *testing.T) {
		e, timer := newTestExecutor(t, &Config{MaxAttempts: 1})
		calls := 0
		err := e.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			calls++
			return errDownstream
		})
		assert.ErrorIs(t, err, errDownstream)
		assert.Equal(t, 1, calls)
		assert.Empty(t, timer.Delays())
	})

	t.Run("等待时间受 MaxDelay 限制", func(t *testing.T) {
		e, timer := newTestExecutor(t, &Config{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			Multiplier:  3,
			MaxDelay:    5 * time.Second,
		})
		_ = e.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			return errDownstream
		})
		assert.Equal(t, []time.Duration{time.Second, 3 * time.Second, 5 * time.Second, 5 * time.Second}, timer.Delays())
	})

	t.Run("ctx 取消后停止并保留最后一次错误", func(t *testing.T) {
		e, _ := newTestExecutor(t, &Config{MaxAttempts: 5})
		ctx, cancel := context.WithCancel(context.Background())

		calls := 0
		err := e.Execute(ctx, func(ctx context.Context, attempt int) error {
			calls++
			cancel()
			return errDownstream
		})

		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, errDownstream)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("操作本身返回 Canceled 时不重试", func(t *testing.T) {
		e, _ := newTestExecutor(t, nil)
		calls := 0
		err := e.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			calls++
			return context.Canceled
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestDelay(t *testing.T) {
	e, err := New(&Config{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, Multiplier: 2, MaxDelay: 30 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), e.Delay(1))
	assert.Equal(t, 500*time.Millisecond, e.Delay(2))
	assert.Equal(t, time.Second, e.Delay(3))
	assert.Equal(t, 2*time.Second, e.Delay(4))
	assert.Equal(t, 30*time.Second, e.Delay(20))
}

func TestNew(t *testing.T) {
	t.Run("nil 配置使用默认值", func(t *testing.T) {
		e, err := New(nil)
		require.NoError(t, err)
		assert.Equal(t, *DefaultConfig(), e.Config())
	})

	t.Run("非法配置", func(t *testing.T) {
		cases := map[string]*Config{
			"尝试次数为负": {MaxAttempts: -1},
			"倍数小于 1":  {Multiplier: 0.5},
			"等待时间为负": {BaseDelay: -time.Second},
			"上限小于基础值": {BaseDelay: time.Minute, MaxDelay: time.Second},
		}
		for name, cfg := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := New(cfg)
				require.Error(t, err)
				assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))
			})
		}
	})

	t.Run("不修改调用方的配置", func(t *testing.T) {
		cfg := &Config{MaxAttempts: 2}
		_, err := New(cfg)
		require.NoError(t, err)
		assert.Zero(t, cfg.BaseDelay)
	})
}

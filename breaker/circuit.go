package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// Snapshot 熔断器状态快照
type Snapshot struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Calls       int       `json:"buffered_calls"`
	Failures    int       `json:"failed_calls"`
	FailureRate float64   `json:"failure_rate"`
	OpenedAt    time.Time `json:"opened_at,omitzero"`
}

// CircuitBreaker 单个下游目标的熔断器
//
// 窗口与状态由同一把锁保护。每次状态切换都会递增 generation，
// 在旧 generation 中放行的调用返回时其结果被丢弃。
type CircuitBreaker struct {
	name   string
	policy Policy

	now    func() time.Time
	ignore IgnoreFunc
	hooks  []StateChangeHook
	logger clog.Logger
	inst   *instruments

	mu              sync.Mutex
	state           State
	generation      uint64
	window          *Window
	openedAt        time.Time
	halfOpenPermits int // 剩余试探名额
	halfOpenPassed  int // 已成功的试探调用
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, policy Policy, opts ...Option) (*CircuitBreaker, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}
	if err := policy.validate(); err != nil {
		return nil, xerrors.Wrapf(err, "breaker %s", name)
	}

	o := newOptions(opts)
	inst, err := newInstruments(o.meter)
	if err != nil {
		return nil, err
	}
	return newCircuitBreaker(name, policy, o, inst), nil
}

func newCircuitBreaker(name string, policy Policy, o *options, inst *instruments) *CircuitBreaker {
	if policy.MinimumCalls > policy.SlidingWindowSize {
		policy.MinimumCalls = policy.SlidingWindowSize
	}
	return &CircuitBreaker{
		name:   name,
		policy: policy,
		now:    o.now,
		ignore: o.ignore,
		hooks:  o.hooks,
		logger: o.logger.With(clog.String("service", name)),
		inst:   inst,
		state:  StateClosed,
		window: NewWindow(policy.SlidingWindowSize),
	}
}

// Name 熔断器名称（下游目标名）
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Policy 生效策略
func (cb *CircuitBreaker) Policy() Policy {
	return cb.policy
}

// Allow 申请一次调用许可
//
// 成功时返回 done 回调，调用方必须在调用结束后恰好调用一次并传入结果；
// 熔断器拒绝时返回 ErrOpenState 或 ErrTooManyRequests。
func (cb *CircuitBreaker) Allow() (func(Outcome), error) {
	cb.mu.Lock()
	change, err := cb.acquire(cb.now())
	generation := cb.generation
	cb.mu.Unlock()

	cb.emit(change)

	if err != nil {
		cb.inst.calls.Inc(context.Background(), metrics.L(LabelService, cb.name), metrics.L(LabelResult, resultRejected))
		return nil, err
	}

	var once sync.Once
	return func(outcome Outcome) {
		once.Do(func() { cb.done(generation, outcome) })
	}, nil
}

// Execute 在熔断保护下执行 fn，按 IgnoreFunc 对返回的错误分类
//
// fn panic 时记为失败并重新 panic。
func (cb *CircuitBreaker) Execute(fn func() error) (err error) {
	done, err := cb.Allow()
	if err != nil {
		return err
	}

	defer func() {
		if e := recover(); e != nil {
			done(Failure)
			panic(e)
		}
		done(cb.Classify(err))
	}()

	return fn()
}

// Classify 将调用错误映射为结果
func (cb *CircuitBreaker) Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case cb.ignore(err):
		return Ignored
	default:
		return Failure
	}
}

// State 当前状态
//
// OPEN 状态在等待时间过去后仍报告为 OPEN，直到下一次调用尝试触发转换。
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics 返回状态快照
func (cb *CircuitBreaker) Metrics() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Snapshot{
		Name:        cb.name,
		State:       cb.state,
		Calls:       cb.window.Total(),
		Failures:    cb.window.Failures(),
		FailureRate: cb.window.FailureRate(),
	}
	if cb.state != StateClosed {
		s.OpenedAt = cb.openedAt
	}
	return s
}

// Reset 强制回到 CLOSED 并清空窗口
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.transition(StateClosed, cb.now())
	cb.window.Reset()
	cb.mu.Unlock()

	cb.emit(change)
	cb.logger.Info("circuit breaker reset")
}

// stateChange 锁内产生、锁外发布的状态变更
type stateChange struct {
	from, to State
	changed  bool
}

// acquire 需持有锁
func (cb *CircuitBreaker) acquire(now time.Time) (stateChange, error) {
	var change stateChange

	if cb.state == StateOpen {
		if now.Sub(cb.openedAt) < cb.policy.WaitDurationInOpen {
			return change, ErrOpenState
		}
		change = cb.transition(StateHalfOpen, now)
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenPermits <= 0 {
			return change, ErrTooManyRequests
		}
		cb.halfOpenPermits--
	}
	return change, nil
}

func (cb *CircuitBreaker) done(generation uint64, outcome Outcome) {
	cb.mu.Lock()
	if generation != cb.generation {
		cb.mu.Unlock()
		return
	}
	change := cb.record(outcome, cb.now())
	cb.mu.Unlock()

	cb.inst.calls.Inc(context.Background(), metrics.L(LabelService, cb.name), metrics.L(LabelResult, outcome.String()))
	cb.emit(change)
}

// record 需持有锁
func (cb *CircuitBreaker) record(outcome Outcome, now time.Time) stateChange {
	switch cb.state {
	case StateClosed:
		if outcome == Ignored {
			return stateChange{}
		}
		cb.window.Record(outcome == Failure)
		if cb.window.Total() >= cb.policy.MinimumCalls && cb.window.FailureRate() >= cb.policy.FailureRateThreshold {
			return cb.transition(StateOpen, now)
		}

	case StateHalfOpen:
		switch outcome {
		case Ignored:
			cb.halfOpenPermits++
		case Failure:
			return cb.transition(StateOpen, now)
		case Success:
			cb.halfOpenPassed++
			if cb.halfOpenPassed >= cb.policy.PermittedCallsInHalfOpen {
				return cb.transition(StateClosed, now)
			}
		}
	}
	return stateChange{}
}

// transition 需持有锁
func (cb *CircuitBreaker) transition(to State, now time.Time) stateChange {
	from := cb.state
	if from == to {
		return stateChange{}
	}

	cb.state = to
	cb.generation++

	switch to {
	case StateOpen:
		cb.openedAt = now
	case StateHalfOpen:
		cb.halfOpenPermits = cb.policy.PermittedCallsInHalfOpen
		cb.halfOpenPassed = 0
	case StateClosed:
		cb.window.Reset()
		cb.openedAt = time.Time{}
	}
	return stateChange{from: from, to: to, changed: true}
}

// emit 在锁外记录日志、指标并调用回调
func (cb *CircuitBreaker) emit(change stateChange) {
	if !change.changed {
		return
	}

	fields := []clog.Field{
		clog.String("from", change.from.String()),
		clog.String("to", change.to.String()),
	}
	if change.to == StateOpen {
		cb.logger.Warn("circuit breaker opened", fields...)
	} else {
		cb.logger.Info("circuit breaker state changed", fields...)
	}

	ctx := context.Background()
	cb.inst.stateChanges.Inc(ctx,
		metrics.L(LabelService, cb.name),
		metrics.L(LabelFromState, change.from.String()),
		metrics.L(LabelToState, change.to.String()))
	cb.inst.state.Set(ctx, float64(change.to), metrics.L(LabelService, cb.name))

	for _, hook := range cb.hooks {
		hook(cb.name, change.from, change.to)
	}
}

type instruments struct {
	calls        metrics.Counter
	stateChanges metrics.Counter
	state        metrics.Gauge
}

func newInstruments(meter metrics.Meter) (*instruments, error) {
	var (
		inst instruments
		err  error
	)
	if inst.calls, err = meter.Counter(MetricCallsTotal, "Circuit breaker call outcomes"); err != nil {
		return nil, xerrors.Wrap(err, "create calls counter")
	}
	if inst.stateChanges, err = meter.Counter(MetricStateChanges, "Circuit breaker state transitions"); err != nil {
		return nil, xerrors.Wrap(err, "create state changes counter")
	}
	if inst.state, err = meter.Gauge(MetricState, "Circuit breaker state (0=closed, 1=open, 2=half_open)"); err != nil {
		return nil, xerrors.Wrap(err, "create state gauge")
	}
	return &inst, nil
}

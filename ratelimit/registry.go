package ratelimit

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// idleFactor 未配置 IdleTimeout 时取最长补满时间的倍数
const idleFactor = 5

// Registry 按 Key 管理令牌桶
//
// 同一个 Key 的并发首次访问只会创建一个桶。桶在 IdleTimeout 内未被访问即被淘汰；
// IdleTimeout 不小于任一规则从空桶补满所需的时间（ceil(Capacity/RefillTokens) 个周期），
// 因此被淘汰的桶在淘汰时已经补满，重新创建的满桶与保留旧桶在行为上没有区别。
type Registry struct {
	policy      *Policy
	mode        Mode
	idleTimeout time.Duration
	cache       *otter.Cache[Key, TokenBucket]
	now         func() time.Time

	logger  clog.Logger
	created metrics.Counter
	evicted metrics.Counter
}

// New 根据配置创建策略与注册表
func New(cfg *Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	mode, err := cfg.mode()
	if err != nil {
		return nil, err
	}

	o := newOptions(opts)
	policy, err := cfg.Policy(o.logger)
	if err != nil {
		return nil, err
	}

	base := []Option{WithMode(mode), WithIdleTimeout(cfg.IdleTimeout), WithMaxEntries(cfg.MaxEntries)}
	return NewRegistry(policy, append(base, opts...)...)
}

// NewRegistry 基于已有策略创建注册表
func NewRegistry(policy *Policy, opts ...Option) (*Registry, error) {
	if policy == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: policy is nil")
	}

	o := newOptions(opts)
	if o.mode != ModeInterval && o.mode != ModeSmooth {
		return nil, xerrors.Wrapf(ErrInvalidMode, "mode %q", o.mode)
	}

	longest := policy.LongestFullRefill()
	idle := o.idleTimeout
	if idle == 0 {
		idle = idleFactor * longest
	}
	if idle < longest {
		return nil, xerrors.Wrapf(ErrInvalidIdleTimeout, "idle timeout %s < full refill time %s", idle, longest)
	}

	r := &Registry{
		policy:      policy,
		mode:        o.mode,
		idleTimeout: idle,
		now:         o.now,
		logger:      o.logger,
	}

	var err error
	if r.created, err = o.meter.Counter(MetricBucketsCreated, "Number of token buckets created"); err != nil {
		return nil, xerrors.Wrap(err, "create buckets counter")
	}
	if r.evicted, err = o.meter.Counter(MetricBucketsEvicted, "Number of token buckets evicted"); err != nil {
		return nil, xerrors.Wrap(err, "create evictions counter")
	}

	cache, err := otter.New(&otter.Options[Key, TokenBucket]{
		MaximumSize:      o.maxEntries,
		ExpiryCalculator: otter.ExpiryAccessing[Key, TokenBucket](idle),
		OnDeletion: func(e otter.DeletionEvent[Key, TokenBucket]) {
			if !e.WasEvicted() {
				return
			}
			r.evicted.Inc(context.Background(), metrics.L(LabelClass, string(e.Key.Class)))
			r.logger.Debug("token bucket evicted", clog.String("key", e.Key.String()))
		},
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "build bucket cache")
	}
	r.cache = cache

	r.logger.Info("rate limit registry created",
		clog.String("mode", string(r.mode)),
		clog.Duration("idle_timeout", idle),
		clog.Bool("enabled", policy.Enabled()),
		clog.Int("max_entries", o.maxEntries))

	return r, nil
}

// Policy 返回注册表使用的策略
func (r *Registry) Policy() *Policy {
	return r.policy
}

// IdleTimeout 返回实际生效的空闲淘汰时间
func (r *Registry) IdleTimeout() time.Duration {
	return r.idleTimeout
}

// Resolve 获取或创建 (client, class) 对应的令牌桶
func (r *Registry) Resolve(ctx context.Context, client string, class EndpointClass) (TokenBucket, error) {
	if client == "" {
		return nil, ErrKeyEmpty
	}
	rule, err := r.policy.Rule(class)
	if err != nil {
		return nil, err
	}

	return r.cache.Get(ctx, Key{Client: client, Class: class}, otter.LoaderFunc[Key, TokenBucket](
		func(ctx context.Context, key Key) (TokenBucket, error) {
			r.created.Inc(ctx, metrics.L(LabelClass, string(key.Class)), metrics.L(LabelMode, string(r.mode)))
			return r.newBucket(rule), nil
		},
	))
}

func (r *Registry) newBucket(rule Rule) TokenBucket {
	if r.mode == ModeSmooth {
		return NewSmoothBucket(rule, r.now)
	}
	return NewIntervalBucket(rule, r.now)
}

// Lookup 查询已存在的令牌桶，不会创建，但会刷新其空闲时间
func (r *Registry) Lookup(key Key) (TokenBucket, bool) {
	return r.cache.GetIfPresent(key)
}

// Len 当前令牌桶数量（近似值）
func (r *Registry) Len() int {
	return r.cache.EstimatedSize()
}

// Close 清空注册表并停止后台 goroutine
func (r *Registry) Close() error {
	r.cache.InvalidateAll()
	r.cache.StopAllGoroutines()
	return nil
}

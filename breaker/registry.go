package breaker

import (
	"slices"
	"sync"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// Registry 按下游目标名管理熔断器
//
// 熔断器在第一次 Get 时按 Config.PolicyFor 创建，之后在进程生命周期内一直保留。
type Registry struct {
	cfg  *Config
	opts *options
	inst *instruments

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry 创建熔断器注册表，所有已配置的策略在此处校验
func NewRegistry(cfg *Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.PolicyFor("").validate(); err != nil {
		return nil, xerrors.Wrap(err, "default policy")
	}
	for name := range cfg.Services {
		if err := cfg.PolicyFor(name).validate(); err != nil {
			return nil, xerrors.Wrapf(err, "service %s", name)
		}
	}

	o := newOptions(opts)
	inst, err := newInstruments(o.meter)
	if err != nil {
		return nil, err
	}

	o.logger.Info("circuit breaker registry created",
		clog.Int("services", len(cfg.Services)),
		clog.Float64("failure_rate_threshold", cfg.PolicyFor("").FailureRateThreshold))

	return &Registry{
		cfg:      cfg,
		opts:     o,
		inst:     inst,
		breakers: make(map[string]*CircuitBreaker),
	}, nil
}

// Get 获取或创建目标服务的熔断器
func (r *Registry) Get(name string) (*CircuitBreaker, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}

	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb, nil
	}

	cb = newCircuitBreaker(name, r.cfg.PolicyFor(name), r.opts, r.inst)
	r.breakers[name] = cb
	r.opts.logger.Debug("circuit breaker created", clog.String("service", name))
	return cb, nil
}

// Names 返回已创建的熔断器名称（有序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// States 返回所有已创建熔断器的快照，按名称排序
func (r *Registry) States() []Snapshot {
	names := r.Names()
	snapshots := make([]Snapshot, 0, len(names))
	for _, name := range names {
		r.mu.RLock()
		cb := r.breakers[name]
		r.mu.RUnlock()
		snapshots = append(snapshots, cb.Metrics())
	}
	return snapshots
}

package gateway

import (
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/youthconnect/gatekeeper/breaker"
	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/config"
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/ratelimit"
	"github.com/youthconnect/gatekeeper/retry"
	"github.com/youthconnect/gatekeeper/timelimit"
	"github.com/youthconnect/gatekeeper/trace"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// ServiceName 默认服务名
const ServiceName = "gatekeeper"

// AppConfig 网关完整配置，对应 gateway.yaml 的顶层结构
type AppConfig struct {
	Service string `mapstructure:"service"`
	Version string `mapstructure:"version"`

	Log     clog.Config    `mapstructure:"log"`
	Metrics metrics.Config `mapstructure:"metrics"`
	Trace   trace.Config   `mapstructure:"trace"`
	Server  ServerConfig   `mapstructure:"server"`

	RateLimit ratelimit.Config `mapstructure:"ratelimit"`
	Breaker   breaker.Config   `mapstructure:"breaker"`
	Retry     retry.Config     `mapstructure:"retry"`
	TimeLimit timelimit.Config `mapstructure:"timelimit"`

	// Targets 下游服务路由表
	Targets []Target `mapstructure:"targets"`
}

// ServerConfig HTTP/gRPC 服务配置
type ServerConfig struct {
	// Addr HTTP 监听地址，默认 ":8080"
	Addr string `mapstructure:"addr"`

	// GRPCAddr gRPC 监听地址，为空时不启动 gRPC 服务
	GRPCAddr string `mapstructure:"grpc_addr"`

	// Mode gin 运行模式：debug|release|test
	Mode string `mapstructure:"mode"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxBodyBytes 转发请求体上限
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// TrustedProxies 可信代理的 IP 或 CIDR，只有来自这些地址的 X-Forwarded-For 才用于识别客户端。
	// 为空时不信任任何代理，限流按直连对端地址计算
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// Target 下游服务
//
//	targets:
//	  - name: auth-service
//	    prefix: /api/auth
//	    url: http://auth-service:8081
type Target struct {
	// Name 目标名，同时是熔断器和超时配置的键
	Name string `mapstructure:"name"`

	// Prefix 路由前缀，匹配 Prefix 及其下所有路径
	Prefix string `mapstructure:"prefix"`

	// URL 下游基础地址
	URL string `mapstructure:"url"`

	// StripPrefix 转发前是否去掉路由前缀
	StripPrefix bool `mapstructure:"strip_prefix"`
}

// DefaultConfig 返回默认配置，不含任何下游目标
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Service:   ServiceName,
		Version:   "dev",
		Log:       *clog.NewDefaultConfig(),
		Metrics:   *metrics.NewDefaultConfig(ServiceName),
		Trace:     *trace.DefaultConfig(ServiceName),
		Server:    defaultServerConfig(),
		RateLimit: *ratelimit.DefaultConfig(),
		Breaker:   *breaker.DefaultConfig(),
		Retry:     *retry.DefaultConfig(),
		TimeLimit: *timelimit.DefaultConfig(),
	}
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		Mode:            "release",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    10 << 20,
	}
}

// LoadConfig 在默认配置之上叠加 loader 中的配置并校验
func LoadConfig(loader config.Loader) (*AppConfig, error) {
	cfg := DefaultConfig()
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, xerrors.Wrap(err, "unmarshal gateway config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验服务与路由配置，各组件的配置由组件自身在构造时校验
func (c *AppConfig) Validate() error {
	if c.Server.Addr == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "server.addr is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	for i, p := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return xerrors.Wrapf(xerrors.ErrInvalidInput, "server.trusted_proxies[%d]: %q is neither an IP nor a CIDR", i, p)
		}
	}

	prefixes := make(map[string]string, len(c.Targets))
	for i, t := range c.Targets {
		if t.Name == "" {
			return xerrors.Wrapf(xerrors.ErrInvalidInput, "targets[%d]: name is required", i)
		}
		if !strings.HasPrefix(t.Prefix, "/") || strings.HasSuffix(t.Prefix, "/") {
			return xerrors.Wrapf(xerrors.ErrInvalidInput, "targets[%d] %s: prefix %q must start and must not end with '/'", i, t.Name, t.Prefix)
		}
		u, err := url.Parse(t.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return xerrors.Wrapf(xerrors.ErrInvalidInput, "targets[%d] %s: invalid url %q", i, t.Name, t.URL)
		}
		if other, ok := prefixes[t.Prefix]; ok {
			return xerrors.Wrapf(xerrors.ErrInvalidInput, "targets %s and %s share prefix %s", other, t.Name, t.Prefix)
		}
		prefixes[t.Prefix] = t.Name
	}
	return nil
}

// Package gateway 把准入控制和弹性调用装配成一个可运行的 API 网关。
//
// 请求链路：
//
//	recovery -> otelgin -> request id -> access log -> RED 指标
//	  -> admission (429) -> 按前缀转发 -> resilience.Invoke -> 下游 (失败时 503)
//
// 管理路由 /actuator/* 与 /metrics 不经过准入控制。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/youthconnect/gatekeeper/admission"
	"github.com/youthconnect/gatekeeper/breaker"
	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/config"
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/ratelimit"
	"github.com/youthconnect/gatekeeper/resilience"
	"github.com/youthconnect/gatekeeper/retry"
	"github.com/youthconnect/gatekeeper/timelimit"
	"github.com/youthconnect/gatekeeper/trace"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// KeyRateLimitEnabled 限流总开关的配置键
const KeyRateLimitEnabled = "ratelimit.enabled"

// Gateway API 网关
type Gateway struct {
	cfg    *AppConfig
	logger clog.Logger
	now    func() time.Time

	registry *ratelimit.Registry
	gate     *admission.Gate
	breakers *breaker.Registry
	orch     *resilience.Orchestrator
	engine   *gin.Engine
}

// New 根据配置装配网关
func New(cfg *AppConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "gateway config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{
		logger:     clog.Discard(),
		meter:      metrics.Discard(),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	registry, err := ratelimit.New(&cfg.RateLimit,
		ratelimit.WithLogger(o.logger),
		ratelimit.WithMeter(o.meter),
		ratelimit.WithClock(o.now))
	if err != nil {
		return nil, xerrors.Wrap(err, "create bucket registry")
	}

	g, err := assemble(cfg, o, registry)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	return g, nil
}

func assemble(cfg *AppConfig, o *options, registry *ratelimit.Registry) (*Gateway, error) {
	gate, err := admission.NewGate(registry, admission.WithLogger(o.logger), admission.WithMeter(o.meter))
	if err != nil {
		return nil, xerrors.Wrap(err, "create admission gate")
	}

	breakers, err := breaker.NewRegistry(&cfg.Breaker,
		breaker.WithLogger(o.logger),
		breaker.WithMeter(o.meter),
		breaker.WithClock(o.now))
	if err != nil {
		return nil, xerrors.Wrap(err, "create breaker registry")
	}

	retrier, err := retry.New(&cfg.Retry, retry.WithLogger(o.logger), retry.WithMeter(o.meter))
	if err != nil {
		return nil, xerrors.Wrap(err, "create retry executor")
	}

	limiter, err := timelimit.New(&cfg.TimeLimit, timelimit.WithLogger(o.logger), timelimit.WithMeter(o.meter))
	if err != nil {
		return nil, xerrors.Wrap(err, "create time limiter")
	}

	orch, err := resilience.New(breakers, retrier, limiter,
		resilience.WithLogger(o.logger),
		resilience.WithMeter(o.meter),
		resilience.WithClock(o.now))
	if err != nil {
		return nil, xerrors.Wrap(err, "create orchestrator")
	}

	httpMetrics, err := metrics.NewHTTPServerMetrics(o.meter, metrics.DefaultHTTPServerMetricsConfig(cfg.Service))
	if err != nil {
		return nil, xerrors.Wrap(err, "create http metrics")
	}

	g := &Gateway{
		cfg:      cfg,
		logger:   o.logger,
		now:      o.now,
		registry: registry,
		gate:     gate,
		breakers: breakers,
		orch:     orch,
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "server.trusted_proxies: %v", err)
	}
	engine.Use(
		gin.Recovery(),
		trace.GinMiddleware(cfg.Service),
		requestID(),
		accessLog(o.logger),
		metrics.GinHTTPMiddleware(httpMetrics),
	)
	g.registerAdminRoutes(engine)

	api := engine.Group("", admission.GinMiddleware(gate, &admission.GinMiddlewareOptions{Now: o.now}))
	for _, t := range cfg.Targets {
		p, err := newProxy(t, o.httpClient, orch, o.logger, cfg.Server.MaxBodyBytes, o.now)
		if err != nil {
			return nil, err
		}
		api.Any(t.Prefix, p.handle)
		api.Any(t.Prefix+"/*path", p.handle)
		o.logger.Info("route registered",
			clog.String("service", t.Name),
			clog.String("prefix", t.Prefix),
			clog.String("url", t.URL))
	}

	g.engine = engine
	return g, nil
}

// Handler 返回网关的 HTTP 处理器
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// Gate 返回准入闸门
func (g *Gateway) Gate() *admission.Gate {
	return g.gate
}

// Orchestrator 返回弹性调用编排器，业务代码可直接用它调用下游
func (g *Gateway) Orchestrator() *resilience.Orchestrator {
	return g.orch
}

// Breakers 返回熔断器注册表
func (g *Gateway) Breakers() *breaker.Registry {
	return g.breakers
}

// WatchConfig 监听限流总开关，配置文件变化时立即生效
func (g *Gateway) WatchConfig(ctx context.Context, loader config.Loader) error {
	ch, err := loader.Watch(ctx, KeyRateLimitEnabled)
	if err != nil {
		return xerrors.Wrapf(err, "watch %s", KeyRateLimitEnabled)
	}

	go func() {
		for event := range ch {
			enabled, err := strconv.ParseBool(fmt.Sprint(event.Value))
			if err != nil {
				g.logger.Warn("ignore invalid rate limit switch",
					clog.String("key", event.Key),
					clog.Any("value", event.Value))
				continue
			}
			g.gate.SetEnabled(enabled)
		}
	}()
	return nil
}

// Run 启动 HTTP（以及可选的 gRPC）服务，直到 ctx 结束或服务出错，然后优雅关闭
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         g.cfg.Server.Addr,
		Handler:      g.engine,
		ReadTimeout:  g.cfg.Server.ReadTimeout,
		WriteTimeout: g.cfg.Server.WriteTimeout,
		IdleTimeout:  g.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		g.logger.Info("http server listening", clog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- xerrors.Wrap(err, "http server")
		}
	}()

	var grpcSrv *grpc.Server
	if addr := g.cfg.Server.GRPCAddr; addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			_ = srv.Close()
			return xerrors.Wrapf(err, "listen grpc %s", addr)
		}
		grpcSrv = grpc.NewServer(g.GRPCServerOptions()...)
		healthpb.RegisterHealthServer(grpcSrv, health.NewServer())
		go func() {
			g.logger.Info("grpc server listening", clog.String("addr", lis.Addr().String()))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- xerrors.Wrap(err, "grpc server")
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutting down")
	case runErr = <-errCh:
		g.logger.Error("server failed, shutting down", clog.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), g.cfg.Server.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	return xerrors.Combine(runErr, shutdownErr)
}

// Close 释放令牌桶注册表
func (g *Gateway) Close() error {
	return g.registry.Close()
}

// Command gateway 启动 Youth Connect API 网关。
//
// 配置从 ./config 或 ./configs 下的 gateway.yaml 读取，GATEKEEPER_ 前缀的环境变量可覆盖任意配置项，
// 例如 GATEKEEPER_SERVER_ADDR=:9000。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/config"
	"github.com/youthconnect/gatekeeper/gateway"
	"github.com/youthconnect/gatekeeper/metrics"
	"github.com/youthconnect/gatekeeper/trace"
	"github.com/youthconnect/gatekeeper/xerrors"
)

func main() {
	configDir := flag.String("config", "", "directory containing gateway.yaml")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := []string{".", "./config", "./configs"}
	if configDir != "" {
		paths = []string{configDir}
	}
	loader, err := config.New(&config.Config{Name: "gateway", Paths: paths})
	if err != nil {
		return err
	}
	if err := loader.Load(ctx); err != nil {
		return xerrors.Wrap(err, "load config")
	}
	cfg, err := gateway.LoadConfig(loader)
	if err != nil {
		return err
	}

	logger, err := clog.New(&cfg.Log, clog.WithNamespace(cfg.Service), clog.WithStandardContext())
	if err != nil {
		return xerrors.Wrap(err, "init logger")
	}
	defer logger.Flush()

	cfg.Trace.ServiceName = cfg.Service
	traceShutdown, err := trace.Setup(&cfg.Trace)
	if err != nil {
		return xerrors.Wrap(err, "init trace")
	}

	cfg.Metrics.ServiceName = cfg.Service
	cfg.Metrics.Version = cfg.Version
	meter, err := metrics.New(&cfg.Metrics, metrics.WithLogger(logger))
	if err != nil {
		_ = traceShutdown(context.Background())
		return xerrors.Wrap(err, "init metrics")
	}

	gw, err := gateway.New(cfg, gateway.WithLogger(logger), gateway.WithMeter(meter))
	if err != nil {
		_ = meter.Shutdown(context.Background())
		_ = traceShutdown(context.Background())
		return err
	}

	if err := gw.WatchConfig(ctx, loader); err != nil {
		logger.Warn("config hot reload disabled", clog.Error(err))
	}

	logger.Info("gateway starting",
		clog.String("version", cfg.Version),
		clog.String("addr", cfg.Server.Addr),
		clog.Int("targets", len(cfg.Targets)),
		clog.Bool("rate_limit", cfg.RateLimit.Enabled))

	runErr := gw.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return xerrors.Combine(
		runErr,
		gw.Close(),
		meter.Shutdown(shutdownCtx),
		traceShutdown(shutdownCtx),
	)
}

package metrics

// Config 指标系统配置
//
//	metrics:
//	  enabled: true
//	  service_name: "gatekeeper"
//	  version: "v1.0.0"
//	  path: "/metrics"
//	  runtime: true
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 作为 OpenTelemetry Resource 的 service.name
	ServiceName string `mapstructure:"service_name"`

	// Version 作为 OpenTelemetry Resource 的 service.version
	Version string `mapstructure:"version"`

	// Port 大于 0 时额外启动独立的 Prometheus HTTP 服务器
	// 网关默认把 /metrics 挂在管理路由上，此时保持为 0 即可
	Port int `mapstructure:"port"`

	// Path Prometheus 采集路径，默认 "/metrics"
	Path string `mapstructure:"path"`

	// Runtime 是否采集 Go 运行时指标（goroutine、GC、内存）
	Runtime bool `mapstructure:"runtime"`
}

// NewDefaultConfig 返回默认配置
func NewDefaultConfig(service string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: service,
		Path:        "/metrics",
	}
}

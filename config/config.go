package config

import (
	"context"
	"strings"

	"github.com/youthconnect/gatekeeper/clog"
)

// DefaultEnvPrefix 默认环境变量前缀
const DefaultEnvPrefix = "GATEKEEPER"

// Config 加载器配置
type Config struct {
	Name      string   // 配置文件名称（不含扩展名）
	Paths     []string // 配置文件搜索路径，默认 [".", "./config"]
	FileType  string   // 配置文件类型 (yaml, json, etc.)
	EnvPrefix string   // 环境变量前缀，默认 "GATEKEEPER"

	logger clog.Logger
}

// Option 配置选项
type Option func(*Config)

// validate 设置默认值
func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = DefaultEnvPrefix
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	if c.logger == nil {
		c.logger = clog.Discard()
	}
	return nil
}

// WithConfigName 设置配置文件名称（不带扩展名）
func WithConfigName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

// WithConfigPaths 设置配置文件搜索路径（覆盖默认值）
func WithConfigPaths(paths ...string) Option {
	return func(c *Config) {
		c.Paths = paths
	}
}

// WithConfigType 设置配置文件类型
func WithConfigType(typ string) Option {
	return func(c *Config) {
		c.FileType = typ
	}
}

// WithEnvPrefix 设置环境变量前缀
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.EnvPrefix = prefix
	}
}

// WithLogger 设置 Logger，加载过程中的提示信息会写入该 Logger
func WithLogger(logger clog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger.WithNamespace("config")
		}
	}
}

// New 创建配置加载器，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	for _, o := range opts {
		o(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newLoader(cfg), nil
}

// MustLoad 创建并加载配置，失败时 panic，仅用于初始化阶段
func MustLoad(opts ...Option) Loader {
	loader, err := New(nil, opts...)
	if err != nil {
		panic(err)
	}
	if err := loader.Load(context.Background()); err != nil {
		panic(err)
	}
	return loader
}

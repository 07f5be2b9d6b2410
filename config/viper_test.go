package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// TestLoaderLoad 测试配置加载优先级
func TestLoaderLoad(t *testing.T) {
	tmpDir := t.TempDir()

	writeFile(t, filepath.Join(tmpDir, "gateway.yaml"), `
server:
  addr: ":8080"
ratelimit:
  enabled: true
  rules:
    auth:
      requests_per_minute: 20
breaker:
  default:
    failure_rate_threshold: 50
`)
	writeFile(t, filepath.Join(tmpDir, "gateway.dev.yaml"), `
breaker:
  default:
    failure_rate_threshold: 80
`)
	writeFile(t, filepath.Join(tmpDir, ".env"), "GKTEST_LOAD_CLOG_LEVEL=debug\n")

	t.Setenv("GKTEST_LOAD_ENV", "dev")
	t.Setenv("GKTEST_LOAD_SERVER_ADDR", ":9090")

	loader, err := New(&Config{
		Name:      "gateway",
		Paths:     []string{tmpDir},
		EnvPrefix: "GKTEST_LOAD",
	})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, ":9090", loader.Get("server.addr"), "环境变量优先级最高")
	assert.Equal(t, "debug", loader.Get("clog.level"), ".env 中的值应生效")
	assert.Equal(t, 80, loader.Get("breaker.default.failure_rate_threshold"), "环境特定配置覆盖基础配置")
	assert.Equal(t, true, loader.Get("ratelimit.enabled"))

	var rules struct {
		Auth struct {
			RequestsPerMinute int `mapstructure:"requests_per_minute"`
		} `mapstructure:"auth"`
	}
	require.NoError(t, loader.UnmarshalKey("ratelimit.rules", &rules))
	assert.Equal(t, 20, rules.Auth.RequestsPerMinute)
}

// TestLoaderValidate 测试空配置校验
func TestLoaderValidate(t *testing.T) {
	t.Run("找不到配置文件且没有环境变量时报错", func(t *testing.T) {
		loader, err := New(&Config{
			Name:      "nonexistent",
			Paths:     []string{t.TempDir()},
			EnvPrefix: "GKTEST_EMPTY_CONFIG",
		})
		require.NoError(t, err)

		err = loader.Load(context.Background())
		require.Error(t, err)
		assert.True(t, IsInvalidInput(err))
	})

	t.Run("合法配置", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeFile(t, filepath.Join(tmpDir, "config.yaml"), "ratelimit: {enabled: false}")

		loader, err := New(&Config{Paths: []string{tmpDir}})
		require.NoError(t, err)
		require.NoError(t, loader.Load(context.Background()))
		assert.NoError(t, loader.Validate())
	})
}

// TestLoaderWatch 测试配置热更新
func TestLoaderWatch(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "watch.yaml")
	writeFile(t, configFile, "ratelimit:\n  enabled: true\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	loader, err := New(&Config{Name: "watch", Paths: []string{tmpDir}, EnvPrefix: "GKTEST_WATCH"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(ctx))

	ch, err := loader.Watch(ctx, "ratelimit.enabled")
	require.NoError(t, err)

	// 等待 fsnotify 就绪
	time.Sleep(100 * time.Millisecond)
	writeFile(t, configFile, "ratelimit:\n  enabled: false\n")

	select {
	case event := <-ch:
		assert.Equal(t, "ratelimit.enabled", event.Key)
		assert.Equal(t, false, event.Value)
		assert.Equal(t, true, event.OldValue)
		assert.Equal(t, "file", event.Source)
	case <-ctx.Done():
		t.Fatal("未收到配置变更事件")
	}
}

// TestLoaderWatchCancel 取消 context 后通道应被关闭
func TestLoaderWatchCancel(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.yaml"), "a: 1\n")

	loader, err := New(&Config{Paths: []string{tmpDir}, EnvPrefix: "GKTEST_CANCEL"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := loader.Watch(ctx, "a")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	_, err = loader.Watch(context.Background(), "")
	assert.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	cfg := &Config{}
	_, err := New(cfg, WithConfigName("gateway"), WithEnvPrefix("gk"))
	require.NoError(t, err)

	assert.Equal(t, "gateway", cfg.Name)
	assert.Equal(t, "GK", cfg.EnvPrefix)
	assert.Equal(t, []string{".", "./config"}, cfg.Paths)
	assert.Equal(t, "yaml", cfg.FileType)
}

func TestMustLoadPanic(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad(WithConfigName("missing"), WithConfigPaths(t.TempDir()), WithEnvPrefix("GKTEST_PANIC"))
	})
}

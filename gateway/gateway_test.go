package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youthconnect/gatekeeper/admission"
	"github.com/youthconnect/gatekeeper/breaker"
	"github.com/youthconnect/gatekeeper/config"
	"github.com/youthconnect/gatekeeper/ratelimit"
	"github.com/youthconnect/gatekeeper/resilience"
	"github.com/youthconnect/gatekeeper/retry"
	"github.com/youthconnect/gatekeeper/xerrors"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type upstream struct {
	*httptest.Server
	hits    atomic.Int32
	status  atomic.Int32
	lastReq atomic.Pointer[http.Request]
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.status.Store(http.StatusOK)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.lastReq.Store(r.Clone(context.Background()))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "user-service")
		w.WriteHeader(int(u.status.Load()))
		_, _ = io.WriteString(w, `{"path":"`+r.URL.Path+`","query":"`+r.URL.RawQuery+`"}`)
	}))
	t.Cleanup(u.Close)
	return u
}

func testConfig(targets ...Target) *AppConfig {
	cfg := DefaultConfig()
	cfg.Server.Mode = "test"
	cfg.Metrics.Enabled = false
	cfg.Retry = retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	cfg.Breaker.Default = breaker.Policy{
		FailureRateThreshold:     50,
		SlidingWindowSize:        6,
		MinimumCalls:             6,
		WaitDurationInOpen:       time.Minute,
		PermittedCallsInHalfOpen: 1,
	}
	cfg.Targets = targets
	return cfg
}

func newTestGateway(t *testing.T, cfg *AppConfig) *Gateway {
	t.Helper()
	gw, err := New(cfg, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

// doFrom 以指定的直连地址发起无请求体的请求
func doFrom(gw *Gateway, remoteAddr, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)
	return w
}

func do(gw *Gateway, method, path string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)
	return w
}

func TestGateway_Proxy(t *testing.T) {
	t.Run("按前缀转发并透传响应", func(t *testing.T) {
		up := newUpstream(t)
		gw := newTestGateway(t, testConfig(Target{Name: "user-service", Prefix: "/api/users", URL: up.URL}))

		w := do(gw, http.MethodGet, "/api/users/42?fields=name", nil, map[string]string{
			HeaderRequestID:   "req-1",
			"X-Forwarded-For": "41.210.5.6",
			"Connection":      "keep-alive",
		})

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"path":"/api/users/42","query":"fields=name"}`, w.Body.String())
		assert.Equal(t, "user-service", w.Header().Get("X-Upstream"))
		assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
		assert.Equal(t, "99", w.Header().Get(admission.HeaderRemaining))

		req := up.lastReq.Load()
		require.NotNil(t, req)
		assert.Equal(t, "req-1", req.Header.Get(HeaderRequestID))
		assert.True(t, strings.HasPrefix(req.Header.Get("X-Forwarded-For"), "41.210.5.6"))
		assert.Empty(t, req.Header.Get("Connection"))
	})

	t.Run("去掉前缀转发请求体", func(t *testing.T) {
		up := newUpstream(t)
		gw := newTestGateway(t, testConfig(Target{Name: "job-service", Prefix: "/api/jobs", URL: up.URL + "/v1", StripPrefix: true}))

		w := do(gw, http.MethodPost, "/api/jobs/search", strings.NewReader(`{"q":"nurse"}`), nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"path":"/v1/search","query":""}`, w.Body.String())
	})

	t.Run("没有 X-Request-ID 时生成", func(t *testing.T) {
		up := newUpstream(t)
		gw := newTestGateway(t, testConfig(Target{Name: "user-service", Prefix: "/api/users", URL: up.URL}))

		w := do(gw, http.MethodGet, "/api/users", nil, nil)
		assert.Len(t, w.Header().Get(HeaderRequestID), 36)
		assert.Equal(t, w.Header().Get(HeaderRequestID), up.lastReq.Load().Header.Get(HeaderRequestID))
	})

	t.Run("下游 4xx 原样返回且不重试", func(t *testing.T) {
		up := newUpstream(t)
		up.status.Store(http.StatusNotFound)
		gw := newTestGateway(t, testConfig(Target{Name: "user-service", Prefix: "/api/users", URL: up.URL}))

		w := do(gw, http.MethodGet, "/api/users/404", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, int32(1), up.hits.Load())
	})

	t.Run("下游持续 5xx 时重试 3 次后返回 503", func(t *testing.T) {
		up := newUpstream(t)
		up.status.Store(http.StatusBadGateway)
		gw := newTestGateway(t, testConfig(Target{Name: "user-service", Prefix: "/api/users", URL: up.URL}))

		w := do(gw, http.MethodGet, "/api/users/1", nil, nil)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, int32(3), up.hits.Load())

		var body UnavailableBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, UnavailableBody{
			Timestamp: fixedNow,
			Status:    http.StatusServiceUnavailable,
			Error:     "Service Unavailable",
			Message:   resilience.DefaultMessage,
			Service:   "user-service",
		}, body)
	})

	t.Run("熔断打开后不再访问下游", func(t *testing.T) {
		up := newUpstream(t)
		up.status.Store(http.StatusInternalServerError)
		gw := newTestGateway(t, testConfig(Target{Name: "user-service", Prefix: "/api/users", URL: up.URL}))

		// 两次请求共 6 次失败，达到最小调用数后熔断打开
		do(gw, http.MethodGet, "/api/users/1", nil, nil)
		do(gw, http.MethodGet, "/api/users/1", nil, nil)
		require.Equal(t, int32(6), up.hits.Load())

		w := do(gw, http.MethodGet, "/api/users/1", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, int32(6), up.hits.Load())

		health := do(gw, http.MethodGet, "/actuator/health", nil, nil)
		var hb HealthBody
		require.NoError(t, json.Unmarshal(health.Body.Bytes(), &hb))
		assert.Equal(t, StatusDegraded, hb.Status)
		assert.Equal(t, breaker.StateOpen, hb.CircuitBreakers["user-service"])
	})

	t.Run("下游不可达时返回 503", func(t *testing.T) {
		gw := newTestGateway(t, testConfig(Target{Name: "mentor-service", Prefix: "/api/mentors", URL: "http://127.0.0.1:1"}))
		w := do(gw, http.MethodGet, "/api/mentors", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"service":"mentor-service"`)
	})

	t.Run("请求体超限返回 413", func(t *testing.T) {
		up := newUpstream(t)
		cfg := testConfig(Target{Name: "content-service", Prefix: "/api/content", URL: up.URL})
		cfg.Server.MaxBodyBytes = 8
		gw := newTestGateway(t, cfg)

		w := do(gw, http.MethodPost, "/api/content", strings.NewReader(`{"title":"too long"}`), nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Zero(t, up.hits.Load())
	})
}

func TestGateway_Admission(t *testing.T) {
	t.Run("登录接口第 21 次请求返回 429", func(t *testing.T) {
		up := newUpstream(t)
		gw := newTestGateway(t, testConfig(Target{Name: "auth-service", Prefix: "/api/auth", URL: up.URL}))
		header := map[string]string{"X-Forwarded-For": "196.43.1.10"}

		for i := 0; i < 20; i++ {
			require.Equal(t, http.StatusOK, do(gw, http.MethodPost, "/api/auth/login", nil, header).Code)
		}
		w := do(gw, http.MethodPost, "/api/auth/login", nil, header)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get(admission.HeaderRetryAfter))
		assert.Equal(t, int32(20), up.hits.Load())
	})

	t.Run("直连客户端轮换 X-Forwarded-For 不能绕过限流", func(t *testing.T) {
		up := newUpstream(t)
		gw := newTestGateway(t, testConfig(Target{Name: "auth-service", Prefix: "/api/auth", URL: up.URL}))

		rejected := 0
		for i := 0; i < 25; i++ {
			header := map[string]string{"X-Forwarded-For": "1.2.3." + strconv.Itoa(i)}
			w := doFrom(gw, "203.0.113.7:51000", http.MethodPost, "/api/auth/login", header)
			if i == 20 {
				assert.Equal(t, http.StatusTooManyRequests, w.Code)
			}
			if w.Code == http.StatusTooManyRequests {
				rejected++
			}
		}
		assert.Equal(t, 5, rejected)
		assert.Equal(t, int32(20), up.hits.Load())
	})

	t.Run("可信代理后的客户端各自计数", func(t *testing.T) {
		up := newUpstream(t)
		cfg := testConfig(Target{Name: "auth-service", Prefix: "/api/auth", URL: up.URL})
		cfg.Server.TrustedProxies = []string{"10.20.0.0/16"}
		gw := newTestGateway(t, cfg)

		first := map[string]string{"X-Forwarded-For": "196.43.1.20"}
		for i := 0; i < 20; i++ {
			require.Equal(t, http.StatusOK, doFrom(gw, "10.20.0.5:44000", http.MethodPost, "/api/auth/login", first).Code)
		}
		assert.Equal(t, http.StatusTooManyRequests, doFrom(gw, "10.20.0.5:44000", http.MethodPost, "/api/auth/login", first).Code)

		second := map[string]string{"X-Forwarded-For": "196.43.1.21"}
		assert.Equal(t, http.StatusOK, doFrom(gw, "10.20.0.5:44000", http.MethodPost, "/api/auth/login", second).Code)
	})

	t.Run("可信代理配置错误时创建失败", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.TrustedProxies = []string{"not-a-cidr"}
		_, err := New(cfg)
		require.Error(t, err)
		assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))
	})

	t.Run("管理接口关闭限流", func(t *testing.T) {
		up := newUpstream(t)
		gw := newTestGateway(t, testConfig(Target{Name: "auth-service", Prefix: "/api/auth", URL: up.URL}))

		w := do(gw, http.MethodPut, "/actuator/ratelimit", strings.NewReader(`{"enabled":false}`),
			map[string]string{"Content-Type": "application/json"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, gw.Gate().Enabled())

		for i := 0; i < 30; i++ {
			require.Equal(t, http.StatusOK, do(gw, http.MethodPost, "/api/auth/login", nil, nil).Code)
		}
	})

	t.Run("缺少 enabled 字段返回 400", func(t *testing.T) {
		gw := newTestGateway(t, testConfig())
		w := do(gw, http.MethodPut, "/actuator/ratelimit", strings.NewReader(`{}`),
			map[string]string{"Content-Type": "application/json"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.True(t, gw.Gate().Enabled())
	})

	t.Run("管理接口不受限流", func(t *testing.T) {
		cfg := testConfig()
		cfg.RateLimit.Rules = map[string]ratelimit.RuleConfig{"general": {RequestsPerMinute: 1}}
		gw := newTestGateway(t, cfg)
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, do(gw, http.MethodGet, "/actuator/health", nil, nil).Code)
		}
	})
}

func TestGateway_Admin(t *testing.T) {
	up := newUpstream(t)
	gw := newTestGateway(t, testConfig(Target{Name: "user-service", Prefix: "/api/users", URL: up.URL}))
	do(gw, http.MethodGet, "/api/users", nil, nil)

	t.Run("健康检查", func(t *testing.T) {
		w := do(gw, http.MethodGet, "/actuator/health", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body HealthBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, StatusUp, body.Status)
		assert.True(t, body.RateLimiter.Enabled)
		assert.Equal(t, 1, body.RateLimiter.Buckets)
		assert.Equal(t, breaker.StateClosed, body.CircuitBreakers["user-service"])
	})

	t.Run("熔断器列表", func(t *testing.T) {
		w := do(gw, http.MethodGet, "/actuator/circuitbreakers", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			CircuitBreakers []breaker.Snapshot `json:"circuit_breakers"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.CircuitBreakers, 1)
		assert.Equal(t, "user-service", body.CircuitBreakers[0].Name)
		assert.Equal(t, 1, body.CircuitBreakers[0].Calls)
	})

	t.Run("重置熔断器", func(t *testing.T) {
		w := do(gw, http.MethodPost, "/actuator/circuitbreakers/user-service/reset", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = do(gw, http.MethodPost, "/actuator/circuitbreakers/unknown/reset", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

type fakeLoader struct {
	config.Loader
	ch chan config.Event
}

func (l *fakeLoader) Watch(ctx context.Context, key string) (<-chan config.Event, error) {
	return l.ch, nil
}

func TestGateway_WatchConfig(t *testing.T) {
	gw := newTestGateway(t, testConfig())
	loader := &fakeLoader{ch: make(chan config.Event, 2)}
	t.Cleanup(func() { close(loader.ch) })

	require.NoError(t, gw.WatchConfig(context.Background(), loader))

	loader.ch <- config.Event{Key: KeyRateLimitEnabled, Value: "not-a-bool"}
	loader.ch <- config.Event{Key: KeyRateLimitEnabled, Value: false}

	assert.Eventually(t, func() bool { return !gw.Gate().Enabled() }, time.Second, 5*time.Millisecond)
}

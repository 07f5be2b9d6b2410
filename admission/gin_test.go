package admission

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T, gate *Gate, opts *GinMiddlewareOptions, trustedProxies ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	require.NoError(t, r.SetTrustedProxies(trustedProxies))
	r.Use(GinMiddleware(gate, opts))
	r.POST("/api/auth/login", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/jobs", func(c *gin.Context) { c.String(http.StatusOK, "jobs") })
	return r
}

func login(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	return loginVia(r, ip+":40112", "")
}

// loginVia 从 remoteAddr 发起登录，xff 非空时带上 X-Forwarded-For
func loginVia(r *gin.Engine, remoteAddr, xff string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGinMiddleware(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	t.Run("放行时返回剩余令牌数", func(t *testing.T) {
		r := setupTestRouter(t, newTestGate(t, newFakeClock()), nil)

		w := login(r, "196.43.1.10")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "19", w.Header().Get(HeaderRemaining))
		assert.Empty(t, w.Header().Get(HeaderRetryAfter))
	})

	t.Run("超限后返回 429 与响应头", func(t *testing.T) {
		r := setupTestRouter(t, newTestGate(t, newFakeClock()), &GinMiddlewareOptions{
			Now: func() time.Time { return now },
		})

		for i := 0; i < 20; i++ {
			require.Equal(t, http.StatusOK, login(r, "196.43.1.11").Code)
		}
		w := login(r, "196.43.1.11")

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "0", w.Header().Get(HeaderRemaining))
		assert.Equal(t, "60", w.Header().Get(HeaderRetryAfter))

		var body RejectBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, RejectBody{
			Timestamp: now,
			Status:    http.StatusTooManyRequests,
			Error:     "Too Many Requests",
			Message:   RejectMessage,
			Path:      "/api/auth/login",
		}, body)
	})

	t.Run("按客户端地址区分令牌桶", func(t *testing.T) {
		r := setupTestRouter(t, newTestGate(t, newFakeClock()), nil)
		for i := 0; i < 20; i++ {
			login(r, "196.43.1.12")
		}
		assert.Equal(t, http.StatusTooManyRequests, login(r, "196.43.1.12").Code)
		assert.Equal(t, http.StatusOK, login(r, "196.43.1.13").Code)
	})

	t.Run("不可信对端轮换 X-Forwarded-For 仍共用一个令牌桶", func(t *testing.T) {
		r := setupTestRouter(t, newTestGate(t, newFakeClock()), nil)
		for i := 0; i < 20; i++ {
			xff := "1.2.3." + strconv.Itoa(i)
			require.Equal(t, http.StatusOK, loginVia(r, "203.0.113.7:51000", xff).Code)
		}
		w := loginVia(r, "203.0.113.7:51000", "1.2.3.200")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get(HeaderRetryAfter))
	})

	t.Run("可信代理转发时按 X-Forwarded-For 区分客户端", func(t *testing.T) {
		r := setupTestRouter(t, newTestGate(t, newFakeClock()), nil, "10.10.0.0/16")
		for i := 0; i < 20; i++ {
			loginVia(r, "10.10.0.1:51000", "196.43.1.15")
		}
		assert.Equal(t, http.StatusTooManyRequests, loginVia(r, "10.10.0.1:51000", "196.43.1.15").Code)
		assert.Equal(t, http.StatusOK, loginVia(r, "10.10.0.1:51000", "196.43.1.16").Code)
	})

	t.Run("普通接口使用 GENERAL 配额", func(t *testing.T) {
		r := setupTestRouter(t, newTestGate(t, newFakeClock()), nil)
		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "99", w.Header().Get(HeaderRemaining))
	})

	t.Run("关闭总开关时不写剩余令牌头", func(t *testing.T) {
		gate := newTestGate(t, newFakeClock())
		gate.SetEnabled(false)
		w := login(setupTestRouter(t, gate, nil), "196.43.1.14")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get(HeaderRemaining))
	})
}

func TestClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newContext := func(t *testing.T, trustedProxies ...string) *gin.Context {
		engine := gin.New()
		require.NoError(t, engine.SetTrustedProxies(trustedProxies))
		c := gin.CreateTestContextOnly(httptest.NewRecorder(), engine)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.RemoteAddr = "10.0.0.1:53211"
		c.Request.Header.Set("X-Forwarded-For", "41.210.5.6, 10.0.0.9")
		return c
	}

	t.Run("对端不可信时忽略 X-Forwarded-For", func(t *testing.T) {
		assert.Equal(t, "10.0.0.1", ClientIP(newContext(t)))
	})

	t.Run("可信代理链取最右侧的不可信地址", func(t *testing.T) {
		assert.Equal(t, "41.210.5.6", ClientIP(newContext(t, "10.0.0.0/8")))
	})

	t.Run("没有转发头时使用远端地址", func(t *testing.T) {
		c := newContext(t, "10.0.0.0/8")
		c.Request.Header.Del("X-Forwarded-For")
		assert.Equal(t, "10.0.0.1", ClientIP(c))
	})
}

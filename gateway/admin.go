package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/youthconnect/gatekeeper/breaker"
	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/metrics"
)

// 健康状态
const (
	StatusUp       = "UP"
	StatusDegraded = "DEGRADED"
)

// HealthBody /actuator/health 响应体
type HealthBody struct {
	Status          string                   `json:"status"`
	RateLimiter     RateLimiterHealth        `json:"rate_limiter"`
	CircuitBreakers map[string]breaker.State `json:"circuit_breakers"`
}

// RateLimiterHealth 限流器状态
type RateLimiterHealth struct {
	Enabled bool `json:"enabled"`
	Buckets int  `json:"buckets"`
}

// rateLimitSwitch PUT /actuator/ratelimit 请求体
type rateLimitSwitch struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (g *Gateway) registerAdminRoutes(r *gin.Engine) {
	admin := r.Group("/actuator")
	admin.GET("/health", g.health)
	admin.GET("/circuitbreakers", g.circuitBreakers)
	admin.POST("/circuitbreakers/:name/reset", g.resetCircuitBreaker)
	admin.PUT("/ratelimit", g.switchRateLimit)

	if g.cfg.Metrics.Enabled && g.cfg.Metrics.Port == 0 {
		path := g.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(metrics.Handler()))
	}
}

// health 网关自身可用即为 UP，任一下游熔断打开时为 DEGRADED，HTTP 状态码始终 200
func (g *Gateway) health(c *gin.Context) {
	body := HealthBody{
		Status: StatusUp,
		RateLimiter: RateLimiterHealth{
			Enabled: g.gate.Enabled(),
			Buckets: g.registry.Len(),
		},
		CircuitBreakers: make(map[string]breaker.State),
	}
	for _, s := range g.breakers.States() {
		body.CircuitBreakers[s.Name] = s.State
		if s.State == breaker.StateOpen {
			body.Status = StatusDegraded
		}
	}
	c.JSON(http.StatusOK, body)
}

func (g *Gateway) circuitBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"circuit_breakers": g.breakers.States()})
}

func (g *Gateway) resetCircuitBreaker(c *gin.Context) {
	name := c.Param("name")
	found := false
	for _, n := range g.breakers.Names() {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "circuit breaker not found"})
		return
	}

	cb, err := g.breakers.Get(name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cb.Reset()
	g.logger.InfoContext(c.Request.Context(), "circuit breaker reset via admin", clog.String("service", name))
	c.JSON(http.StatusOK, cb.Metrics())
}

func (g *Gateway) switchRateLimit(c *gin.Context) {
	var req rateLimitSwitch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g.gate.SetEnabled(*req.Enabled)
	c.JSON(http.StatusOK, RateLimiterHealth{Enabled: g.gate.Enabled(), Buckets: g.registry.Len()})
}

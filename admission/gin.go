package admission

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youthconnect/gatekeeper/ratelimit"
)

// 响应头
const (
	HeaderRemaining  = "X-Rate-Limit-Remaining"
	HeaderRetryAfter = "X-Rate-Limit-Retry-After-Seconds"
)

// RejectMessage 429 响应中的提示信息
const RejectMessage = "Rate limit exceeded. Please try again later."

// GinMiddlewareOptions Gin 中间件选项
type GinMiddlewareOptions struct {
	// KeyFunc 提取客户端标识，默认 ClientIP
	KeyFunc func(*gin.Context) string

	// ClassFunc 确定端点类别，默认按路径 Classify
	ClassFunc func(*gin.Context) ratelimit.EndpointClass

	// Now 429 响应体的时间戳来源，默认 time.Now
	Now func() time.Time
}

// RejectBody 429 响应体
type RejectBody struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

// GinMiddleware 创建 Gin 准入中间件
//
// 放行时写入 X-Rate-Limit-Remaining；拒绝时以 429 中止请求，并附带
// X-Rate-Limit-Remaining 与 X-Rate-Limit-Retry-After-Seconds。
//
//	r := gin.New()
//	r.Use(admission.GinMiddleware(gate, nil))
func GinMiddleware(gate *Gate, opts *GinMiddlewareOptions) gin.HandlerFunc {
	o := GinMiddlewareOptions{}
	if opts != nil {
		o = *opts
	}
	if o.KeyFunc == nil {
		o.KeyFunc = ClientIP
	}
	if o.ClassFunc == nil {
		o.ClassFunc = func(c *gin.Context) ratelimit.EndpointClass {
			return Classify(c.Request.URL.Path)
		}
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	return func(c *gin.Context) {
		d := gate.Admit(c.Request.Context(), o.KeyFunc(c), o.ClassFunc(c))

		if d.Remaining >= 0 {
			c.Header(HeaderRemaining, strconv.FormatInt(d.Remaining, 10))
		}

		if d.Allowed {
			c.Next()
			return
		}

		c.Header(HeaderRetryAfter, strconv.FormatInt(d.RetryAfterSeconds(), 10))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, RejectBody{
			Timestamp: o.Now(),
			Status:    http.StatusTooManyRequests,
			Error:     http.StatusText(http.StatusTooManyRequests),
			Message:   RejectMessage,
			Path:      c.Request.URL.Path,
		})
	}
}

// ClientIP 提取客户端 IP
//
// 只有直连对端属于 engine.SetTrustedProxies 配置的可信代理时才采信
// X-Forwarded-For / X-Real-IP，否则使用直连对端地址，伪造的转发头不会产生新的令牌桶。
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

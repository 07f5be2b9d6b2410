// Package ratelimit 实现网关的按客户端、按端点类别的令牌桶限流。
//
// 每个 (客户端, 端点类别) 组合拥有独立的令牌桶，桶在第一次准入检查时创建，
// 空闲超过 IdleTimeout 后由 otter 自动淘汰。默认使用整周期补充的 IntervalBucket：
// 每经过一个完整的 RefillPeriod 补充 RefillTokens 个令牌，永不超过容量。
//
// 默认规则：
//
//	AUTH    容量 20，每 60s 补充 20
//	USSD    容量 50，每 60s 补充 50
//	GENERAL 容量 100，每 60s 补充 100
//
// ## 基本使用
//
//	registry, err := ratelimit.New(ratelimit.DefaultConfig(),
//		ratelimit.WithLogger(logger),
//		ratelimit.WithMeter(meter),
//	)
//	if err != nil {
//		return err
//	}
//	defer registry.Close()
//
//	bucket, err := registry.Resolve(ctx, clientIP, ratelimit.ClassAuth)
//	if err != nil {
//		return err
//	}
//	if !bucket.TryConsume() {
//		// 429
//	}
//
// 配置 mode: smooth 时改用基于 golang.org/x/time/rate 的 SmoothBucket，
// 令牌连续补充而不是按整周期补充。
package ratelimit

import (
	"strings"
	"time"
)

// EndpointClass 端点类别，不同类别使用不同的限流规则
type EndpointClass string

const (
	ClassAuth    EndpointClass = "AUTH"
	ClassUSSD    EndpointClass = "USSD"
	ClassGeneral EndpointClass = "GENERAL"
)

// Classes 返回所有端点类别
func Classes() []EndpointClass {
	return []EndpointClass{ClassAuth, ClassUSSD, ClassGeneral}
}

// Valid 判断类别是否合法
func (c EndpointClass) Valid() bool {
	switch c {
	case ClassAuth, ClassUSSD, ClassGeneral:
		return true
	}
	return false
}

// ParseClass 解析类别名称，大小写不敏感
func ParseClass(s string) (EndpointClass, error) {
	c := EndpointClass(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", ErrUnknownClass
	}
	return c, nil
}

// Key 令牌桶注册表的键
type Key struct {
	Client string
	Class  EndpointClass
}

func (k Key) String() string {
	return string(k.Class) + ":" + k.Client
}

// TokenBucket 令牌桶
//
// 实现必须是并发安全的。
type TokenBucket interface {
	// TryConsume 先按经过的时间补充令牌，再尝试取走一个令牌
	TryConsume() bool

	// Remaining 当前可用令牌数（按当前时间计算补充，但不修改状态）
	Remaining() int64

	// RetryAfter 桶为空时距离下一个令牌可用的时间，桶非空时为 0
	RetryAfter() time.Duration

	// Capacity 桶容量
	Capacity() int64

	// LastSeen 最后一次 TryConsume 的时间
	LastSeen() time.Time
}

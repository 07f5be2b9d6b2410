package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SmoothBucket 连续补充的令牌桶，速率为 RefillTokens/RefillPeriod，突发上限为 Capacity
type SmoothBucket struct {
	limiter  *rate.Limiter
	capacity int64
	now      func() time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

// NewSmoothBucket 创建一个满桶，now 为 nil 时使用 time.Now
func NewSmoothBucket(rule Rule, now func() time.Time) *SmoothBucket {
	if now == nil {
		now = time.Now
	}
	interval := rule.RefillPeriod / time.Duration(rule.RefillTokens)
	return &SmoothBucket{
		limiter:  rate.NewLimiter(rate.Every(interval), int(rule.Capacity)),
		capacity: rule.Capacity,
		now:      now,
		lastSeen: now(),
	}
}

// TryConsume 尝试取走一个令牌
func (b *SmoothBucket) TryConsume() bool {
	t := b.now()
	b.mu.Lock()
	b.lastSeen = t
	b.mu.Unlock()
	return b.limiter.AllowN(t, 1)
}

// Remaining 当前可用的完整令牌数
func (b *SmoothBucket) Remaining() int64 {
	tokens := b.limiter.TokensAt(b.now())
	if tokens < 0 {
		return 0
	}
	return int64(math.Floor(tokens))
}

// RetryAfter 距离下一个完整令牌可用的时间
func (b *SmoothBucket) RetryAfter() time.Duration {
	tokens := b.limiter.TokensAt(b.now())
	if tokens >= 1 {
		return 0
	}
	seconds := (1 - tokens) / float64(b.limiter.Limit())
	return time.Duration(math.Ceil(seconds * float64(time.Second)))
}

// Capacity 桶容量
func (b *SmoothBucket) Capacity() int64 {
	return b.capacity
}

// LastSeen 最后一次 TryConsume 的时间
func (b *SmoothBucket) LastSeen() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}

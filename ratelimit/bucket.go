package ratelimit

import (
	"sync"
	"time"
)

// IntervalBucket 整周期补充的令牌桶
//
// 每经过一个完整的 refillPeriod 补充 refillTokens 个令牌，lastRefill 只前进
// 已计入的整周期，余下的不足一个周期的时间保留到下一次计算，不会累积漂移。
// 时钟回拨时经过时间按 0 处理。
type IntervalBucket struct {
	mu sync.Mutex

	capacity     int64
	refillTokens int64
	refillPeriod time.Duration

	available  int64
	lastRefill time.Time
	lastSeen   time.Time

	now func() time.Time
}

// NewIntervalBucket 创建一个满桶，now 为 nil 时使用 time.Now
func NewIntervalBucket(rule Rule, now func() time.Time) *IntervalBucket {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &IntervalBucket{
		capacity:     rule.Capacity,
		refillTokens: rule.RefillTokens,
		refillPeriod: rule.RefillPeriod,
		available:    rule.Capacity,
		lastRefill:   t,
		lastSeen:     t,
		now:          now,
	}
}

// project 计算在 t 时刻补充后的令牌数和 lastRefill，不修改状态
func (b *IntervalBucket) project(t time.Time) (int64, time.Time) {
	elapsed := t.Sub(b.lastRefill)
	if elapsed < b.refillPeriod {
		return b.available, b.lastRefill
	}

	periods := int64(elapsed / b.refillPeriod)
	lastRefill := b.lastRefill.Add(time.Duration(periods) * b.refillPeriod)

	// 补满所需的周期数，超过时直接取容量，避免乘法溢出
	missing := b.capacity - b.available
	needed := (missing + b.refillTokens - 1) / b.refillTokens
	if periods >= needed {
		return b.capacity, lastRefill
	}
	return b.available + periods*b.refillTokens, lastRefill
}

// TryConsume 补充后尝试取走一个令牌
func (b *IntervalBucket) TryConsume() bool {
	t := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.available, b.lastRefill = b.project(t)
	b.lastSeen = t
	if b.available < 1 {
		return false
	}
	b.available--
	return true
}

// Remaining 当前可用令牌数
func (b *IntervalBucket) Remaining() int64 {
	t := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	available, _ := b.project(t)
	return available
}

// RetryAfter 桶为空时距离下一次补充的时间
func (b *IntervalBucket) RetryAfter() time.Duration {
	t := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	available, lastRefill := b.project(t)
	if available > 0 {
		return 0
	}
	elapsed := t.Sub(lastRefill)
	if elapsed < 0 {
		elapsed = 0
	}
	return b.refillPeriod - elapsed
}

// Capacity 桶容量
func (b *IntervalBucket) Capacity() int64 {
	return b.capacity
}

// LastSeen 最后一次 TryConsume 的时间
func (b *IntervalBucket) LastSeen() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}

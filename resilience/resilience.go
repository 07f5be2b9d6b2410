// Package resilience 将超时、重试和熔断组合成一条下游调用路径。
//
// 组合顺序固定为 retry(breaker(timelimit(op)))：
//   - 每次尝试都要先通过目标服务的熔断器，熔断打开时这次尝试立即失败；
//   - 熔断拒绝不可重试，因此熔断打开时 op 一次都不会执行，直接走 fallback；
//   - 可重试的失败按指数退避重试，用完次数后走 fallback。
//
// 调用方只会看到真实结果、fallback 结果或 *Unavailable，下游的原始错误不会越过边界。
//
//	orch, _ := resilience.New(breakers, retrier, limiter, resilience.WithLogger(logger))
//
//	profile, err := resilience.Invoke(ctx, orch, "user-service",
//		func(ctx context.Context) (*Profile, error) {
//			return client.GetProfile(ctx, id)
//		},
//		func(ctx context.Context, cause error) (*Profile, error) {
//			return cachedProfile(id)
//		})
package resilience

import (
	"context"
	"fmt"
	"time"
)

// DefaultMessage *Unavailable 的默认提示信息
const DefaultMessage = "Service temporarily unavailable. Please try again later."

// Operation 真实的下游调用
type Operation[T any] func(ctx context.Context) (T, error)

// Fallback 终止失败时的替代结果，cause 为最后一次失败的原因
type Fallback[T any] func(ctx context.Context, cause error) (T, error)

// Unavailable 目标服务当前不可用
//
// 当 fallback 缺失或自身失败时返回。Cause 仅用于日志，不参与错误链。
type Unavailable struct {
	Service   string
	Message   string
	Timestamp time.Time
	Cause     error
}

func (e *Unavailable) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Service, e.Message)
}

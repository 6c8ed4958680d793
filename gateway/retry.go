package gateway

import (
	"context"
	"time"
)

// RetryPolicy 重试策略：第 n 次重试前等待 Delay * Backoff^(n-1)。
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
	Backoff float64
}

// DefaultRetryPolicy 默认重试策略。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 5, Delay: 2 * time.Second, Backoff: 2}
}

// Retry 执行 fn，失败时按策略退避重试。
// 分类为 fatal/auth 的错误立即上抛，不做任何重试；
// 其余分类总共尝试至多 p.Retries 次，耗尽后返回最后一次的错误。
func Retry(ctx context.Context, clock Clock, p RetryPolicy, fn func() error) error {
	if clock == nil {
		clock = SystemClock
	}
	delay := p.Delay
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Classify(lastErr).Retryable() {
			return lastErr
		}
		if attempt >= p.Retries {
			return lastErr
		}
		if err := clock.Sleep(ctx, delay); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * p.Backoff)
	}
}

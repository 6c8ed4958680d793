package gateway

import (
	"context"
	"time"
)

// Clock 抽象时间与阻塞等待，便于测试注入。
// 所有阻塞（退避、限流、熔断冷却）都经过 Sleep，调用方可通过
// context 提前中止等待。
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SystemClock 默认时钟。
var SystemClock Clock = realClock{}

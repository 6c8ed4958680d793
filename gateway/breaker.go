package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BreakerConfig 熔断器参数。
type BreakerConfig struct {
	MaxErrors  int           `yaml:"max_errors"`
	Cooldown   time.Duration `yaml:"cooldown"`
	IdleWindow time.Duration `yaml:"idle_window"`
}

// DefaultBreakerConfig 返回保守默认值。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxErrors: 10, Cooldown: 60 * time.Second, IdleWindow: 5 * time.Minute}
}

// Breaker 统计连续错误；超过阈值后在下一次调用前强制冷却，
// 保护已经劣化的交易所不被持续轰炸。冷却是阻塞退让而非硬失败。
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	clock     Clock
	errors    int
	lastError time.Time
	tripped   bool
}

func NewBreaker(clock Clock, cfg BreakerConfig) *Breaker {
	if clock == nil {
		clock = SystemClock
	}
	return &Breaker{cfg: cfg, clock: clock}
}

// Admit 在每次调用前检查熔断状态。若已跳闸则阻塞整个冷却期，
// 然后清零计数放行。等待中被取消时返回 ErrCircuitOpen 包装的错误。
func (b *Breaker) Admit(ctx context.Context) error {
	b.mu.Lock()
	if !b.tripped {
		b.mu.Unlock()
		return nil
	}
	cooldown := b.cfg.Cooldown
	b.mu.Unlock()

	if err := b.clock.Sleep(ctx, cooldown); err != nil {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	b.mu.Lock()
	b.tripped = false
	b.errors = 0
	b.mu.Unlock()
	return nil
}

// RecordFailure 记录一次失败。距上次错误超过空闲窗口时先清零，
// 连续错误只在密集失败时累积。
func (b *Breaker) RecordFailure() (tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	if b.cfg.IdleWindow > 0 && !b.lastError.IsZero() && now.Sub(b.lastError) > b.cfg.IdleWindow {
		b.errors = 0
	}
	b.errors++
	b.lastError = now
	if b.cfg.MaxErrors > 0 && b.errors >= b.cfg.MaxErrors {
		b.tripped = true
	}
	return b.tripped
}

// RecordSuccess 成功调用打断连续错误序列。
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.tripped {
		b.errors = 0
	}
}

// ErrorCount 当前连续错误数（监控用）。
func (b *Breaker) ErrorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errors
}

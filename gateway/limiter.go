package gateway

import (
	"context"
	"sync"
	"time"
)

// WindowConfig 单个端点的滑动窗口限流参数。
type WindowConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Period      time.Duration `yaml:"period"`
}

// slidingWindow 记录一个端点最近的请求时间戳。
// 不变式：任何一次 acquire 返回后，窗口内（Period 以内）的时间戳数
// 不超过 MaxRequests。
type slidingWindow struct {
	mu     sync.Mutex
	cfg    WindowConfig
	stamps []time.Time
}

func (w *slidingWindow) acquire(ctx context.Context, clock Clock) (waited time.Duration, err error) {
	for {
		w.mu.Lock()
		now := clock.Now()
		w.prune(now)
		if len(w.stamps) < w.cfg.MaxRequests {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			return waited, nil
		}
		// 阻塞到最老的时间戳滑出窗口，而不是直接拒绝。
		wait := w.stamps[0].Add(w.cfg.Period).Sub(now)
		w.mu.Unlock()
		if wait <= 0 {
			continue
		}
		if err := clock.Sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.cfg.Period)
	i := 0
	for ; i < len(w.stamps); i++ {
		if w.stamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.stamps = w.stamps[i:]
	}
}

// Limiter 按端点维护滑动窗口，控制对交易所的请求速率。
type Limiter struct {
	mu      sync.Mutex
	clock   Clock
	windows map[string]*slidingWindow
	configs map[string]WindowConfig
}

// NewLimiter 创建限流器；configs 的 key 为端点名。
// 未配置的端点不限流。
func NewLimiter(clock Clock, configs map[string]WindowConfig) *Limiter {
	if clock == nil {
		clock = SystemClock
	}
	cp := make(map[string]WindowConfig, len(configs))
	for k, v := range configs {
		cp[k] = v
	}
	return &Limiter{
		clock:   clock,
		windows: make(map[string]*slidingWindow),
		configs: cp,
	}
}

// Wait 阻塞直到端点窗口允许一次新请求。返回实际等待时长。
func (l *Limiter) Wait(ctx context.Context, endpoint string) (time.Duration, error) {
	l.mu.Lock()
	w, ok := l.windows[endpoint]
	if !ok {
		cfg, configured := l.configs[endpoint]
		if !configured || cfg.MaxRequests <= 0 || cfg.Period <= 0 {
			l.mu.Unlock()
			return 0, ctx.Err()
		}
		w = &slidingWindow{cfg: cfg}
		l.windows[endpoint] = w
	}
	l.mu.Unlock()
	return w.acquire(ctx, l.clock)
}

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	// Cooldown 两次重载之间的最短间隔，避免编辑器多次写入触发抖动。
	Cooldown time.Duration
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{Cooldown: 2 * time.Second}
}

// HotReloader 监听配置文件变更并重载，主要用于运行中调整
// 重试/限流/熔断参数。
type HotReloader struct {
	cfg        HotReloadConfig
	configPath string
	watcher    *fsnotify.Watcher

	mu         sync.Mutex
	lastReload time.Time
	onReload   func(AppConfig)
}

// NewHotReloader 创建热更新器。
func NewHotReloader(configPath string, cfg HotReloadConfig) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &HotReloader{
		cfg:        cfg,
		configPath: configPath,
		watcher:    watcher,
	}, nil
}

// OnReload 注册重载回调；回调收到的是已通过校验的新配置。
func (h *HotReloader) OnReload(fn func(AppConfig)) {
	h.mu.Lock()
	h.onReload = fn
	h.mu.Unlock()
}

// Run 阻塞监听直到 ctx 取消。监听目录而不是单个文件，
// 兼容原子替换（rename+create）的写入方式。
func (h *HotReloader) Run(ctx context.Context) error {
	defer h.watcher.Close()
	if err := h.watcher.Add(filepath.Dir(h.configPath)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	target := filepath.Base(h.configPath)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-h.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&fsnotify.Write != fsnotify.Write &&
				event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			h.maybeReload()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func (h *HotReloader) maybeReload() {
	h.mu.Lock()
	if h.cfg.Cooldown > 0 && time.Since(h.lastReload) < h.cfg.Cooldown {
		h.mu.Unlock()
		return
	}
	h.lastReload = time.Now()
	fn := h.onReload
	h.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(h.configPath)
	if err != nil {
		// 坏配置不应打掉正在运行的进程，忽略本次变更。
		return
	}
	if fn != nil {
		fn(cfg)
	}
}

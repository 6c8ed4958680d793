package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"order-exec-go/infrastructure/logger"
)

// Consumer 同步接收行情消息的回调。监听器按到达顺序逐个调用，
// 回调内不要做耗时操作。
type Consumer func(msg []byte)

// TickerUpdate 行情流里的盘口更新。
type TickerUpdate struct {
	Pair string  `json:"pair"`
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
}

// DecodeTicker 解析一条盘口消息。
func DecodeTicker(msg []byte) (TickerUpdate, error) {
	var t TickerUpdate
	if err := json.Unmarshal(msg, &t); err != nil {
		return TickerUpdate{}, fmt.Errorf("decode ticker: %w", err)
	}
	return t, nil
}

type subscribeMessage struct {
	Type  string   `json:"type"`
	Pairs []string `json:"pairs"`
}

// Listener 行情流监听器：连接、订阅、把消息同步分发给消费者，
// 断开后带退避自动重连。
type Listener struct {
	URL   string
	Pairs []string

	Dialer       *websocket.Dialer
	RetryBackoff time.Duration

	log *logger.Logger

	mu        sync.Mutex
	consumers []Consumer
}

// New 创建监听器。
func New(url string, pairs []string, log *logger.Logger) *Listener {
	if log == nil {
		log = logger.Nop()
	}
	return &Listener{
		URL:          url,
		Pairs:        pairs,
		Dialer:       websocket.DefaultDialer,
		RetryBackoff: 5 * time.Second,
		log:          log,
	}
}

// Subscribe 注册一个消费者。
func (l *Listener) Subscribe(c Consumer) {
	l.mu.Lock()
	l.consumers = append(l.consumers, c)
	l.mu.Unlock()
}

// Run 阻塞运行直到 ctx 取消。连接失败或读取中断时退避后重连。
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.runOnce(ctx); err != nil {
			l.log.Warn("stream disconnected", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.RetryBackoff):
		}
	}
}

func (l *Listener) runOnce(ctx context.Context) error {
	conn, _, err := l.Dialer.DialContext(ctx, l.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.URL, err)
	}
	defer conn.Close()
	l.log.Info("stream connected", zap.String("url", l.URL))

	sub := subscribeMessage{Type: "subscribe", Pairs: l.Pairs}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// ctx 取消时主动断开，打断阻塞中的 ReadMessage。
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		l.dispatch(msg)
	}
}

// dispatch 把消息依次交给所有消费者。
func (l *Listener) dispatch(msg []byte) {
	l.mu.Lock()
	consumers := make([]Consumer, len(l.consumers))
	copy(consumers, l.consumers)
	l.mu.Unlock()
	for _, c := range consumers {
		c(msg)
	}
}

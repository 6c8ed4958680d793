package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"order-exec-go/infrastructure/logger"
	"order-exec-go/monitor"
)

// Op 网关操作标识。
type Op string

const (
	OpPlaceOrder  Op = "place_order"
	OpCancelOrder Op = "cancel_order"
	OpOrderStatus Op = "order_status"
	OpTicker      Op = "ticker"
	OpBalances    Op = "balances"
	OpFee         Op = "fee"
)

// OpPolicy 每操作的弹性策略：走哪个限流端点、缓存多久。
// 显式表驱动，取代按方法名前缀包装的做法。
type OpPolicy struct {
	Endpoint string
	CacheTTL time.Duration
}

// Config 网关配置。
type Config struct {
	Retry    RetryPolicy
	Breaker  BreakerConfig
	Windows  map[string]WindowConfig
	Policies map[Op]OpPolicy
}

// DefaultPolicies 默认策略表：读操作缓存，写操作仅限流。
func DefaultPolicies() map[Op]OpPolicy {
	return map[Op]OpPolicy{
		OpPlaceOrder:  {Endpoint: "orders"},
		OpCancelOrder: {Endpoint: "orders"},
		OpOrderStatus: {Endpoint: "orders"},
		OpTicker:      {Endpoint: "market", CacheTTL: time.Second},
		OpBalances:    {Endpoint: "account", CacheTTL: 5 * time.Second},
		OpFee:         {Endpoint: "account", CacheTTL: time.Minute},
	}
}

// Gateway 包裹交易所客户端的所有出站调用：重试退避、端点限流、
// 响应缓存、熔断。窗口/缓存/熔断计数是进程内唯一共享可变状态，
// 全部收敛在本实例内并以互斥锁保护。
type Gateway struct {
	client  Client
	clock   Clock
	log     *logger.Logger
	metrics *monitor.Metrics

	limiter *Limiter
	cache   *Cache
	breaker *Breaker

	mu       sync.RWMutex
	retry    RetryPolicy
	policies map[Op]OpPolicy
}

// Option 构造选项。
type Option func(*Gateway)

func WithClock(c Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

func WithMetrics(m *monitor.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New 创建网关。
func New(client Client, cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		client: client,
		clock:  SystemClock,
		log:    logger.Nop(),
		retry:  cfg.Retry,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retry.Retries <= 0 {
		g.retry = DefaultRetryPolicy()
	}
	g.policies = cfg.Policies
	if g.policies == nil {
		g.policies = DefaultPolicies()
	}
	g.limiter = NewLimiter(g.clock, cfg.Windows)
	g.cache = NewCache(g.clock)
	g.breaker = NewBreaker(g.clock, cfg.Breaker)
	return g
}

// Clock 返回网关时钟，供调用方复用同一时间源做独立重试。
func (g *Gateway) Clock() Clock { return g.clock }

// RetryPolicy 返回当前重试策略。
func (g *Gateway) RetryPolicy() RetryPolicy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.retry
}

// SetRetryPolicy 热更新重试策略。
func (g *Gateway) SetRetryPolicy(p RetryPolicy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.Retries > 0 {
		g.retry = p
	}
}

// CanTrade 询问适配器当前能否交易；适配器未实现时默认可交易。
func (g *Gateway) CanTrade(ctx context.Context) bool {
	if tc, ok := g.client.(TradeChecker); ok {
		return tc.CanTrade(ctx)
	}
	return true
}

func (g *Gateway) policy(op Op) OpPolicy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.policies[op]
}

// call 所有出站调用的公共管道：缓存 → 熔断准入 → 限流 → 带退避重试。
// 每一次真实请求（含重试）都单独经过限流窗口。
func (g *Gateway) call(ctx context.Context, op Op, key string, fn func() (any, error)) (any, error) {
	pol := g.policy(op)

	if key != "" && pol.CacheTTL > 0 {
		if v, ok := g.cache.Get(key, pol.CacheTTL); ok {
			g.metrics.CacheHit(string(op))
			return v, nil
		}
	}

	if err := g.breaker.Admit(ctx); err != nil {
		return nil, err
	}

	var result any
	err := Retry(ctx, g.clock, g.RetryPolicy(), func() error {
		if pol.Endpoint != "" {
			waited, err := g.limiter.Wait(ctx, pol.Endpoint)
			if err != nil {
				return err
			}
			if waited > 0 {
				g.metrics.RateLimitWait(pol.Endpoint, waited)
				g.log.LogGateway("rate_limit_wait", string(op),
					zap.String("endpoint", pol.Endpoint), zap.Duration("waited", waited))
			}
		}
		g.metrics.GatewayRequest(string(op))
		start := g.clock.Now()
		v, err := fn()
		g.metrics.GatewayLatency(string(op), g.clock.Now().Sub(start))
		if err != nil {
			kind := Classify(err)
			g.metrics.GatewayError(string(op), kind.String())
			if g.breaker.RecordFailure() {
				g.metrics.BreakerTrip()
				g.log.LogGateway("breaker_tripped", string(op), zap.Int("errors", g.breaker.ErrorCount()))
			}
			if kind.Retryable() {
				g.metrics.GatewayRetry(string(op))
			}
			return err
		}
		g.breaker.RecordSuccess()
		result = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	if key != "" && pol.CacheTTL > 0 {
		g.cache.Put(key, result)
	}
	return result, nil
}

// PlaceOrder 下单。写操作，从不缓存。
func (g *Gateway) PlaceOrder(ctx context.Context, side string, amount, price float64, pair string) (OrderAck, error) {
	v, err := g.call(ctx, OpPlaceOrder, "", func() (any, error) {
		return g.client.PlaceOrder(ctx, side, amount, price, pair)
	})
	if err != nil {
		return OrderAck{}, err
	}
	return v.(OrderAck), nil
}

// OrderStatus 查询订单状态。状态必须实时，不缓存。
func (g *Gateway) OrderStatus(ctx context.Context, id string) (OrderState, error) {
	v, err := g.call(ctx, OpOrderStatus, "", func() (any, error) {
		return g.client.OrderStatus(ctx, id)
	})
	if err != nil {
		return OrderState{}, err
	}
	return v.(OrderState), nil
}

// CancelOrder 撤单。
func (g *Gateway) CancelOrder(ctx context.Context, id string) error {
	_, err := g.call(ctx, OpCancelOrder, "", func() (any, error) {
		return nil, g.client.CancelOrder(ctx, id)
	})
	return err
}

// Ticker 查询最优买卖价，按交易对缓存。
func (g *Gateway) Ticker(ctx context.Context, pair string) (Ticker, error) {
	v, err := g.call(ctx, OpTicker, CacheKey(string(OpTicker), pair), func() (any, error) {
		return g.client.Ticker(ctx, pair)
	})
	if err != nil {
		return Ticker{}, err
	}
	return v.(Ticker), nil
}

// Balances 查询余额。
func (g *Gateway) Balances(ctx context.Context) ([]Balance, error) {
	v, err := g.call(ctx, OpBalances, CacheKey(string(OpBalances)), func() (any, error) {
		return g.client.Balances(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Balance), nil
}

// Fee 查询手续费率。
func (g *Gateway) Fee(ctx context.Context) (float64, error) {
	v, err := g.call(ctx, OpFee, CacheKey(string(OpFee)), func() (any, error) {
		return g.client.Fee(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Batch 将 items 按 size 分批顺序提交。任何一批失败立即中止并上抛；
// 已提交的批次在交易所侧已经生效，不做补偿回滚。
func Batch[T any](ctx context.Context, items []T, size int, submit func(context.Context, []T) error) error {
	if size <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", size)
	}
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		if err := submit(ctx, items[start:end]); err != nil {
			return fmt.Errorf("batch %d-%d failed: %w", start, end, err)
		}
	}
	return nil
}

package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"order-exec-go/gateway"
	"order-exec-go/infrastructure/logger"
	"order-exec-go/market"
	"order-exec-go/monitor"
	"order-exec-go/order"
)

// OrderType 支持的订单风格。
type OrderType string

const (
	TypeLimit  OrderType = "limit"
	TypeSticky OrderType = "sticky"
)

// Status 经纪侧订单状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Params 下单参数。
type Params struct {
	// Price 限价单的限价。
	Price *float64
	// Limit sticky 单的最差可接受价。
	Limit *float64
	// PostOnly 限价单是否禁止吃单。
	PostOnly bool
	// Outbid sticky 单是否比最优同侧价好一个 tick。
	Outbid bool
}

// Controller 订单控制器的统一只读+驱动视图。
type Controller interface {
	ID() string
	ClientID() string
	State() order.State
	Price() float64
	FilledAmount() float64
	Completed() bool
	PollInterval() time.Duration
	Check(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// Record 经纪侧的订单登记项。执行失败的订单保留在 open 集合中
// 供运维检查，而不是静默丢弃。
type Record struct {
	Type       OrderType
	Side       order.Side
	Amount     float64
	Params     Params
	Status     Status
	ExchangeID string
	LastError  string
	Controller Controller
}

// ErrNotAuthenticated 未认证（public 模式）时禁止下单。
var ErrNotAuthenticated = errors.New("client is not authenticated")

// Config 经纪服务配置。
type Config struct {
	// Private 是否处于认证模式。
	Private  bool   `yaml:"private"`
	Currency string `yaml:"currency"`
	Asset    string `yaml:"asset"`
}

// Broker 订单入口：校验交易意图、实例化控制器、跟踪到终局，
// 并同步账户/盘口/手续费状态。open/closed 集合由本服务独占持有。
type Broker struct {
	cfg     Config
	gw      *gateway.Gateway
	mkt     market.Market
	log     *logger.Logger
	metrics *monitor.Metrics

	portfolio *Portfolio

	mu     sync.Mutex
	open   map[string]*Record
	closed []*Record
	ticker gateway.Ticker
}

// New 创建经纪服务。
func New(cfg Config, gw *gateway.Gateway, mkt market.Market, log *logger.Logger, metrics *monitor.Metrics) *Broker {
	if log == nil {
		log = logger.Nop()
	}
	b := &Broker{
		cfg:     cfg,
		gw:      gw,
		mkt:     mkt,
		log:     log,
		metrics: metrics,
		open:    make(map[string]*Record),
	}
	if cfg.Private {
		b.portfolio = NewPortfolio(gw, cfg.Currency, cfg.Asset, log)
	}
	return b
}

// Portfolio 账户侧状态；public 模式下为 nil。
func (b *Broker) Portfolio() *Portfolio { return b.portfolio }

// Ticker 最近一次同步的盘口。
func (b *Broker) Ticker() gateway.Ticker {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ticker
}

// CanTrade 询问交易所当前能否交易。
func (b *Broker) CanTrade(ctx context.Context) bool {
	return b.gw.CanTrade(ctx)
}

// CreateOrder 校验并执行一个交易意图。校验失败返回
// *market.ValidationError 且不触发任何交易所调用；校验通过后订单
// 先进入 open 集合，再尝试执行。执行失败不作为 error 上抛，调用方
// 通过返回记录的 Status 观察结果。
func (b *Broker) CreateOrder(ctx context.Context, typ OrderType, side order.Side, amount float64, params Params) (*Record, error) {
	if !b.cfg.Private {
		return nil, ErrNotAuthenticated
	}
	if !side.Valid() {
		return nil, fmt.Errorf("unknown side: %s", side)
	}
	price := -1.0
	if params.Price != nil {
		price = *params.Price
	}
	if typ == TypeLimit && params.Price == nil {
		return nil, &market.ValidationError{Reason: "Price is not valid"}
	}
	if err := b.mkt.Validate(amount, price); err != nil {
		return nil, err
	}

	rec := &Record{
		Type:   typ,
		Side:   side,
		Amount: amount,
		Params: params,
		Status: StatusPending,
	}
	ctrl := b.buildController(typ, params)
	rec.Controller = ctrl

	b.mu.Lock()
	b.open[ctrl.ClientID()] = rec
	b.mu.Unlock()

	b.ExecuteOrder(ctx, rec)
	return rec, nil
}

func (b *Broker) buildController(typ OrderType, params Params) Controller {
	switch typ {
	case TypeSticky:
		return order.NewStickyOrder(b.gw, b.mkt, params.Outbid, b.log, b.metrics)
	default:
		return order.NewLimitOrder(b.gw, b.mkt, params.PostOnly, b.log, b.metrics)
	}
}

// ExecuteOrder 驱动控制器提交订单。成功则标记 completed 并移入
// closed 集合；失败只落在订单状态上，绝不向调用方抛错——扫描多个
// 交易对的外层流程不能被一张坏单打断。
func (b *Broker) ExecuteOrder(ctx context.Context, rec *Record) {
	var err error
	switch c := rec.Controller.(type) {
	case *order.StickyOrder:
		err = c.Create(ctx, rec.Side, rec.Amount, rec.Params.Limit)
	case *order.LimitOrder:
		err = c.Create(ctx, rec.Side, rec.Amount, *rec.Params.Price)
	default:
		err = fmt.Errorf("unknown controller type %T", rec.Controller)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		rec.Status = StatusFailed
		rec.LastError = err.Error()
		b.metrics.OrderFailed()
		b.log.Error("order execution failed",
			zap.String("client_id", rec.Controller.ClientID()),
			zap.String("side", string(rec.Side)),
			zap.Float64("amount", rec.Amount),
			zap.Error(err))
		return
	}
	rec.Status = StatusCompleted
	rec.ExchangeID = rec.Controller.ID()
	delete(b.open, rec.Controller.ClientID())
	b.closed = append(b.closed, rec)
	b.log.Info("order executed",
		zap.String("client_id", rec.Controller.ClientID()),
		zap.String("exchange_id", rec.ExchangeID),
		zap.String("side", string(rec.Side)),
		zap.Float64("amount", rec.Amount))
}

// Track 轮询订单直到终态或 ctx 取消。轮询间隔取控制器的建议值。
func (b *Broker) Track(ctx context.Context, rec *Record) error {
	ctrl := rec.Controller
	clock := b.gw.Clock()
	for !ctrl.State().Terminal() {
		if err := ctrl.Check(ctx); err != nil {
			return err
		}
		if ctrl.State().Terminal() {
			break
		}
		if err := clock.Sleep(ctx, ctrl.PollInterval()); err != nil {
			return err
		}
	}
	return nil
}

// CancelOrder 撤销一张 open 集合内的订单。
func (b *Broker) CancelOrder(ctx context.Context, clientID string) error {
	b.mu.Lock()
	rec, ok := b.open[clientID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown order: %s", clientID)
	}
	if err := rec.Controller.Cancel(ctx); err != nil {
		b.log.Error("cancel order failed", zap.String("client_id", clientID), zap.Error(err))
		return err
	}
	b.log.Info("order cancelled", zap.String("client_id", clientID))
	return nil
}

// OpenOrders 返回 open 集合快照。
func (b *Broker) OpenOrders() []*Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Record, 0, len(b.open))
	for _, rec := range b.open {
		out = append(out, rec)
	}
	return out
}

// ClosedOrders 返回 closed 集合快照。
func (b *Broker) ClosedOrders() []*Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Record, len(b.closed))
	copy(out, b.closed)
	return out
}

// Sync 与交易所同步状态。public 模式只刷新盘口；private 模式先要求
// CanTrade 成立（致命前置条件，不重试），然后各自独立地刷新盘口、
// 手续费、余额——单项的瞬时失败不阻塞其余任务，重试在网关内完成；
// 只有某项耗尽重试时 Sync 才整体报错。
func (b *Broker) Sync(ctx context.Context) error {
	if !b.cfg.Private {
		return b.setTicker(ctx)
	}
	if !b.CanTrade(ctx) {
		return errors.New("trading is not possible")
	}

	tasks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"ticker", b.setTicker},
		{"fee", b.portfolio.SetFee},
		{"balances", b.portfolio.SetBalances},
	}
	var errs []error
	for _, task := range tasks {
		if err := task.fn(ctx); err != nil {
			b.log.Error("sync task failed", zap.String("task", task.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("sync %s: %w", task.name, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Broker) setTicker(ctx context.Context) error {
	t, err := b.gw.Ticker(ctx, b.mkt.Pair)
	if err != nil {
		return fmt.Errorf("fetch ticker: %w", err)
	}
	b.mu.Lock()
	b.ticker = t
	b.mu.Unlock()
	if b.portfolio != nil {
		b.portfolio.SetTicker(t)
	}
	return nil
}

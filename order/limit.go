package order

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"order-exec-go/gateway"
	"order-exec-go/infrastructure/logger"
	"order-exec-go/market"
	"order-exec-go/monitor"
)

// LimitOrder 固定限价单控制器：创建挂单、改价改量。
// 改动通过严格的先撤后挂序列完成，保证同一逻辑仓位不会同时
// 存在两张活动订单。
type LimitOrder struct {
	*Order
	postOnly bool
}

// NewLimitOrder 创建限价单控制器。postOnly 为真时，会在提交前
// 拒绝任何会吃掉对手盘的价格。
func NewLimitOrder(gw *gateway.Gateway, mkt market.Market, postOnly bool, log *logger.Logger, metrics *monitor.Metrics) *LimitOrder {
	return &LimitOrder{
		Order:    newOrder(gw, mkt, log, metrics),
		postOnly: postOnly,
	}
}

// Create 创建限价单。价格先对齐到 tick；post-only 模式下买价不得
// 达到最优卖价、卖价不得达到最优买价，违反时返回 CrossesBookError
// 且不发生任何提交。
func (l *LimitOrder) Create(ctx context.Context, side Side, amount, price float64) error {
	price = l.market.RoundPrice(price)

	if l.postOnly {
		t, err := l.gw.Ticker(ctx, l.market.Pair)
		if err != nil {
			return fmt.Errorf("post-only check: %w", err)
		}
		if side == SideBuy && price >= t.Ask {
			return &CrossesBookError{Side: side, Price: price, Best: t.Ask}
		}
		if side == SideSell && price <= t.Bid {
			return &CrossesBookError{Side: side, Price: price, Best: t.Bid}
		}
	}

	l.log.Info("creating limit order",
		zap.String("side", string(side)),
		zap.Float64("amount", amount),
		zap.Float64("price", price))
	return l.Submit(ctx, side, amount, price)
}

// MovePrice 修改挂单价格。终态订单为 no-op；转换进行中的订单只
// 排队最新请求值，回到稳定状态后统一应用。
func (l *LimitOrder) MovePrice(ctx context.Context, newPrice float64) error {
	newPrice = l.market.RoundPrice(newPrice)
	if l.completed || l.state.Terminal() {
		l.log.Warn("move_price ignored: order already completed",
			zap.String("order_id", l.id), zap.String("state", string(l.state)))
		return nil
	}
	if l.state.InTransition() {
		l.pendingPrice = &newPrice
		l.log.Info("order in transition, queuing price move",
			zap.String("order_id", l.id), zap.Float64("price", newPrice))
		return nil
	}
	return l.replace(ctx, newPrice, l.amount)
}

// MoveAmount 修改挂单数量，语义同 MovePrice。
func (l *LimitOrder) MoveAmount(ctx context.Context, newAmount float64) error {
	newAmount = l.market.RoundAmount(newAmount)
	if l.completed || l.state.Terminal() {
		l.log.Warn("move_amount ignored: order already completed",
			zap.String("order_id", l.id), zap.String("state", string(l.state)))
		return nil
	}
	if l.state.InTransition() {
		l.pendingAmount = &newAmount
		l.log.Info("order in transition, queuing amount move",
			zap.String("order_id", l.id), zap.Float64("amount", newAmount))
		return nil
	}
	return l.replace(ctx, l.price, newAmount)
}

// replace 先撤后挂。撤销必须得到确认之后才重新提交，顺序不可并发。
// MOVING 转换被拒时整个序列中止：活动订单原样保留，绝不先撤后失联。
func (l *LimitOrder) replace(ctx context.Context, price, amount float64) error {
	if !l.transition(StateMoving) {
		return &TransitionError{From: l.state, To: StateMoving}
	}
	if err := l.gw.CancelOrder(ctx, l.id); err != nil {
		l.transition(StateError)
		return fmt.Errorf("cancel before replace: %w", err)
	}
	oldID := l.id
	l.id = ""
	l.log.Info("order cancelled for replacement",
		zap.String("order_id", oldID),
		zap.Float64("price", price),
		zap.Float64("amount", amount))
	if err := l.Submit(ctx, l.side, amount, price); err != nil {
		return err
	}
	return l.applyPending(ctx)
}

// Check 轮询一次状态；回到稳定状态后应用排队的改动。
func (l *LimitOrder) Check(ctx context.Context) error {
	if err := l.CheckStatus(ctx); err != nil {
		return err
	}
	return l.applyPending(ctx)
}

// applyPending 应用排队中的改价/改量。每个槽位只保留最近一次
// 请求的值（last-writer-wins）。
func (l *LimitOrder) applyPending(ctx context.Context) error {
	if l.state != StateOpen {
		return nil
	}
	price := l.price
	amount := l.amount
	dirty := false
	if l.pendingPrice != nil {
		price = *l.pendingPrice
		l.pendingPrice = nil
		dirty = true
	}
	if l.pendingAmount != nil {
		amount = *l.pendingAmount
		l.pendingAmount = nil
		dirty = true
	}
	if !dirty {
		return nil
	}
	return l.replace(ctx, price, amount)
}

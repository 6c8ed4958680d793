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

// StickyOrder 钉住盘口的订单控制器：价格持续跟随最优同侧报价，
// 可选地被一个最差可接受价（bound）封顶。撤换动作复用限价单
// 控制器的先撤后挂序列。
type StickyOrder struct {
	*LimitOrder
	outbid bool
	bound  *float64
	ticker gateway.Ticker
}

// NewStickyOrder 创建 sticky 控制器。outbid 为真时报价比最优同侧
// 价格好一个 tick，否则贴着最优价挂。
func NewStickyOrder(gw *gateway.Gateway, mkt market.Market, outbid bool, log *logger.Logger, metrics *monitor.Metrics) *StickyOrder {
	// 钉价本身不会越过对手盘，内层限价单不重复做 post-only 检查。
	return &StickyOrder{
		LimitOrder: NewLimitOrder(gw, mkt, false, log, metrics),
		outbid:     outbid,
	}
}

// Create 创建 sticky 订单。bound 是最差可接受价的上限而非目标价：
// 钉价永远不会改进到越过它。
func (s *StickyOrder) Create(ctx context.Context, side Side, amount float64, bound *float64) error {
	s.bound = bound
	amount = s.market.RoundAmount(amount)

	if err := s.fetchTicker(ctx); err != nil {
		return err
	}
	price := s.pegPrice(side)

	s.log.Info("creating sticky order",
		zap.String("side", string(side)),
		zap.Float64("amount", amount),
		zap.Float64("price", price),
		zap.Bool("outbid", s.outbid))
	return s.LimitOrder.Create(ctx, side, amount, price)
}

// AdjustPrice 重新取盘口、按同一规则重算钉价，仅在与当前工作价
// 不同时触发改价。由外部调度器周期性调用；每次调用都是幂等的
// "重算并收敛"一步。
func (s *StickyOrder) AdjustPrice(ctx context.Context) error {
	if s.completed || s.state.Terminal() {
		return nil
	}
	if err := s.fetchTicker(ctx); err != nil {
		return err
	}
	newPrice := s.pegPrice(s.side)
	if newPrice == s.price {
		return nil
	}
	s.log.Info("adjusting sticky order price",
		zap.String("order_id", s.id),
		zap.Float64("from", s.price),
		zap.Float64("to", newPrice))
	return s.MovePrice(ctx, newPrice)
}

func (s *StickyOrder) fetchTicker(ctx context.Context) error {
	t, err := s.gw.Ticker(ctx, s.market.Pair)
	if err != nil {
		return fmt.Errorf("fetch ticker: %w", err)
	}
	s.ticker = t
	return nil
}

// pegPrice 计算钉价：outbid 模式下比最优同侧价好一个 tick，否则
// 贴最优价；bound 存在时收敛到 bound，不允许改进越界。
func (s *StickyOrder) pegPrice(side Side) float64 {
	tick := s.market.TickSize
	var price float64
	switch side {
	case SideBuy:
		price = s.ticker.Bid
		if s.outbid {
			price += tick
		}
		if s.bound != nil && price > *s.bound {
			price = *s.bound
		}
	case SideSell:
		price = s.ticker.Ask
		if s.outbid {
			price -= tick
		}
		if s.bound != nil && price < *s.bound {
			price = *s.bound
		}
	}
	return s.market.RoundPrice(price)
}

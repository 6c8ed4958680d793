package gateway

import "context"

// Ticker 最优买卖价。
type Ticker struct {
	Bid float64
	Ask float64
}

// OrderAck 交易所接受订单后返回的身份。
type OrderAck struct {
	ID string
}

// OrderState 订单在交易所侧的当前状态。
type OrderState struct {
	Open   bool
	Filled bool
	Price  float64
}

// Balance 单个资金账户余额。
type Balance struct {
	Name   string
	Amount float64
}

// Client 交易所适配器契约。实现方负责把底层错误映射为
// *ExchangeError，分类在边界处一次完成。
type Client interface {
	PlaceOrder(ctx context.Context, side string, amount, price float64, pair string) (OrderAck, error)
	OrderStatus(ctx context.Context, id string) (OrderState, error)
	CancelOrder(ctx context.Context, id string) error
	Ticker(ctx context.Context, pair string) (Ticker, error)
	Balances(ctx context.Context) ([]Balance, error)
	Fee(ctx context.Context) (float64, error)
}

// TradeChecker 适配器可选实现，用于回答"当前能否交易"。
type TradeChecker interface {
	CanTrade(ctx context.Context) bool
}

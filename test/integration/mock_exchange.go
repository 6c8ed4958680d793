package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"order-exec-go/gateway"
)

// MockExchange 模拟交易所（用于集成测试）：在内存里登记订单，
// 按配置的轮询次数之后把订单标记为成交。
type MockExchange struct {
	mu sync.Mutex

	// 配置
	bid, ask     float64
	fillAfter    int // 第 N 次状态查询后成交
	failPlaces   int // 前 N 次下单返回瞬时错误
	tradeAllowed bool

	// 订单存储
	orders map[string]*mockOrder
	nextID int

	// 统计
	placeCount  int
	cancelCount int
	statusCount int
}

type mockOrder struct {
	side    string
	amount  float64
	price   float64
	pair    string
	open    bool
	filled  bool
	queries int
}

// NewMockExchange 创建模拟交易所。
func NewMockExchange(bid, ask float64) *MockExchange {
	return &MockExchange{
		bid:          bid,
		ask:          ask,
		fillAfter:    1,
		tradeAllowed: true,
		orders:       make(map[string]*mockOrder),
	}
}

// SetBook 更新盘口。
func (m *MockExchange) SetBook(bid, ask float64) {
	m.mu.Lock()
	m.bid, m.ask = bid, ask
	m.mu.Unlock()
}

// FailNextPlaces 让接下来 n 次下单返回瞬时错误。
func (m *MockExchange) FailNextPlaces(n int) {
	m.mu.Lock()
	m.failPlaces = n
	m.mu.Unlock()
}

// FillAfterQueries 设定订单在第 n 次状态查询后成交。
func (m *MockExchange) FillAfterQueries(n int) {
	m.mu.Lock()
	m.fillAfter = n
	m.mu.Unlock()
}

// PlaceCount 下单调用次数。
func (m *MockExchange) PlaceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placeCount
}

// CancelCount 撤单调用次数。
func (m *MockExchange) CancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCount
}

func (m *MockExchange) PlaceOrder(ctx context.Context, side string, amount, price float64, pair string) (gateway.OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeCount++
	if m.failPlaces > 0 {
		m.failPlaces--
		return gateway.OrderAck{}, gateway.NewExchangeError(gateway.KindTimeout, "place_order", errors.New("simulated timeout"))
	}
	m.nextID++
	id := fmt.Sprintf("mock-%d", m.nextID)
	m.orders[id] = &mockOrder{side: side, amount: amount, price: price, pair: pair, open: true}
	return gateway.OrderAck{ID: id}, nil
}

func (m *MockExchange) OrderStatus(ctx context.Context, id string) (gateway.OrderState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCount++
	o, ok := m.orders[id]
	if !ok {
		return gateway.OrderState{}, gateway.NewExchangeError(gateway.KindNotFound, "order_status", fmt.Errorf("unknown order %s", id))
	}
	o.queries++
	if o.open && o.queries >= m.fillAfter {
		o.open = false
		o.filled = true
	}
	return gateway.OrderState{Open: o.open, Filled: o.filled, Price: o.price}, nil
}

func (m *MockExchange) CancelOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCount++
	o, ok := m.orders[id]
	if !ok {
		return gateway.NewExchangeError(gateway.KindNotFound, "cancel_order", fmt.Errorf("unknown order %s", id))
	}
	o.open = false
	return nil
}

func (m *MockExchange) Ticker(ctx context.Context, pair string) (gateway.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gateway.Ticker{Bid: m.bid, Ask: m.ask}, nil
}

func (m *MockExchange) Balances(ctx context.Context) ([]gateway.Balance, error) {
	return []gateway.Balance{
		{Name: "USD", Amount: 10000},
		{Name: "BTC", Amount: 1},
	}, nil
}

func (m *MockExchange) Fee(ctx context.Context) (float64, error) { return 0.001, nil }

func (m *MockExchange) CanTrade(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tradeAllowed
}

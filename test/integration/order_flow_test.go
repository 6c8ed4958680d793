package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"order-exec-go/broker"
	"order-exec-go/gateway"
	"order-exec-go/market"
	"order-exec-go/order"
)

// virtualClock 虚拟时钟：Sleep 立即推进时间，轮询循环不占真实时间。
type virtualClock struct{ now time.Time }

func (c *virtualClock) Now() time.Time { return c.now }

func (c *virtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

func newFlowGateway(ex *MockExchange) *gateway.Gateway {
	return gateway.New(ex, gateway.Config{
		Retry: gateway.RetryPolicy{Retries: 3, Delay: 10 * time.Millisecond, Backoff: 2},
		Policies: map[gateway.Op]gateway.OpPolicy{
			// 集成场景下盘口必须每次都取最新值，关掉缓存。
			gateway.OpTicker: {},
		},
	}, gateway.WithClock(&virtualClock{now: time.Unix(1700000000, 0)}))
}

func flowMarket() market.Market {
	return market.Market{
		Pair:         "BTCUSD",
		MinimalOrder: market.MinimalOrder{Amount: 0.01, Price: 0.01},
		TickSize:     0.5,
		StepSize:     0.01,
	}
}

func flowBroker(ex *MockExchange) *broker.Broker {
	return broker.New(broker.Config{Private: true, Currency: "USD", Asset: "BTC"},
		newFlowGateway(ex), flowMarket(), nil, nil)
}

// TestStickyOrderFillFlow 完整生命周期：同步 → 下 sticky 单 →
// 轮询到成交。
func TestStickyOrderFillFlow(t *testing.T) {
	ex := NewMockExchange(100, 101)
	ex.FillAfterQueries(3)
	b := flowBroker(ex)
	ctx := context.Background()

	if err := b.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if b.Portfolio().GetBalance("USD") != 10000 {
		t.Fatalf("balances not synced")
	}

	rec, err := b.CreateOrder(ctx, broker.TypeSticky, order.SideBuy, 0.5, broker.Params{Outbid: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Status != broker.StatusCompleted {
		t.Fatalf("expected completed execution, got %s (%s)", rec.Status, rec.LastError)
	}
	// outbid 买单钉在 bid 上方一个 tick。
	if rec.Controller.Price() != 100.5 {
		t.Fatalf("peg price = %v, want 100.5", rec.Controller.Price())
	}

	if err := b.Track(ctx, rec); err != nil {
		t.Fatalf("track: %v", err)
	}
	if rec.Controller.State() != order.StateFilled {
		t.Fatalf("expected FILLED, got %s", rec.Controller.State())
	}
	if rec.Controller.FilledAmount() != 0.5 {
		t.Fatalf("filled amount = %v, want 0.5", rec.Controller.FilledAmount())
	}
}

// TestTransientPlaceFailureRecovered 第一次下单超时，网关内重试后
// 订单照常完成。
func TestTransientPlaceFailureRecovered(t *testing.T) {
	ex := NewMockExchange(100, 101)
	ex.FailNextPlaces(1)
	b := flowBroker(ex)

	rec, err := b.CreateOrder(context.Background(), broker.TypeLimit, order.SideBuy, 0.5,
		broker.Params{Price: floatPtr(99.5)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Status != broker.StatusCompleted {
		t.Fatalf("expected completed after retry, got %s (%s)", rec.Status, rec.LastError)
	}
	if got := ex.PlaceCount(); got != 2 {
		t.Fatalf("expected 2 place attempts, got %d", got)
	}
}

// TestStickyRepegFlow 盘口移动后 AdjustPrice 走先撤后挂。
func TestStickyRepegFlow(t *testing.T) {
	ex := NewMockExchange(100, 101)
	ex.FillAfterQueries(1000) // 保持挂单
	b := flowBroker(ex)
	ctx := context.Background()

	rec, err := b.CreateOrder(ctx, broker.TypeSticky, order.SideBuy, 0.5, broker.Params{Outbid: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sticky, ok := rec.Controller.(*order.StickyOrder)
	if !ok {
		t.Fatalf("expected sticky controller, got %T", rec.Controller)
	}

	ex.SetBook(102, 103)
	if err := sticky.AdjustPrice(ctx); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if sticky.Price() != 102.5 {
		t.Fatalf("repeg price = %v, want 102.5", sticky.Price())
	}
	if ex.CancelCount() != 1 || ex.PlaceCount() != 2 {
		t.Fatalf("repeg must cancel then recreate, cancel=%d place=%d", ex.CancelCount(), ex.PlaceCount())
	}
}

// TestValidationStopsBeforeExchange 校验失败不触发任何交易所调用。
func TestValidationStopsBeforeExchange(t *testing.T) {
	ex := NewMockExchange(100, 101)
	b := flowBroker(ex)

	_, err := b.CreateOrder(context.Background(), broker.TypeLimit, order.SideBuy, 0.001,
		broker.Params{Price: floatPtr(99.5)})
	var ve *market.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ex.PlaceCount() != 0 {
		t.Fatalf("validation must precede exchange calls")
	}
}

func floatPtr(v float64) *float64 { return &v }

package order

import (
	"context"
	"errors"
	"math"
	"testing"

	"order-exec-go/gateway"
)

func TestPostOnlyBuyCrossingBookRejected(t *testing.T) {
	c := &stubClient{ticker: gateway.Ticker{Bid: 1.90, Ask: 1.95}}
	l := NewLimitOrder(newTestGateway(c), testMarket(), true, nil, nil)

	err := l.Create(context.Background(), SideBuy, 1, 2.00)
	if err == nil {
		t.Fatalf("expected crossing rejection")
	}
	var ce *CrossesBookError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CrossesBookError, got %T: %v", err, err)
	}
	if ce.Best != 1.95 {
		t.Fatalf("error must carry best opposing price, got %v", ce.Best)
	}
	if c.placeCalls != 0 {
		t.Fatalf("crossing order must never reach the exchange, got %d places", c.placeCalls)
	}
	if l.State() != StateInitializing {
		t.Fatalf("rejected creation must leave the order untouched, got %s", l.State())
	}
}

func TestPostOnlySellCrossingBookRejected(t *testing.T) {
	c := &stubClient{ticker: gateway.Ticker{Bid: 1.90, Ask: 1.95}}
	l := NewLimitOrder(newTestGateway(c), testMarket(), true, nil, nil)

	err := l.Create(context.Background(), SideSell, 1, 1.88)
	var ce *CrossesBookError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CrossesBookError, got %v", err)
	}
	if c.placeCalls != 0 {
		t.Fatalf("expected zero places, got %d", c.placeCalls)
	}
}

func TestPostOnlyRestingPriceAccepted(t *testing.T) {
	c := &stubClient{ticker: gateway.Ticker{Bid: 1.90, Ask: 1.95}}
	l := NewLimitOrder(newTestGateway(c), testMarket(), true, nil, nil)

	if err := l.Create(context.Background(), SideBuy, 1, 1.90); err != nil {
		t.Fatalf("resting bid must be accepted: %v", err)
	}
	if l.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", l.State())
	}
}

func TestCreateRoundsPriceToTick(t *testing.T) {
	c := &stubClient{}
	l := NewLimitOrder(newTestGateway(c), testMarket(), false, nil, nil)

	if err := l.Create(context.Background(), SideBuy, 1, 1.90142); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := l.Price(); math.Abs(got-1.90) > 1e-9 {
		t.Fatalf("price must align to tick, got %v", got)
	}
}

func TestMovePriceCancelsThenRecreates(t *testing.T) {
	c := &stubClient{nextID: "ex-a"}
	l := NewLimitOrder(newTestGateway(c), testMarket(), false, nil, nil)
	if err := l.Create(context.Background(), SideBuy, 1, 1.90); err != nil {
		t.Fatalf("create: %v", err)
	}

	c.nextID = "ex-b"
	if err := l.MovePrice(context.Background(), 1.85); err != nil {
		t.Fatalf("move: %v", err)
	}
	if c.cancelCalls != 1 || c.placeCalls != 2 {
		t.Fatalf("expected cancel=1 place=2, got cancel=%d place=%d", c.cancelCalls, c.placeCalls)
	}
	if l.ID() != "ex-b" {
		t.Fatalf("replacement must carry the new exchange id, got %q", l.ID())
	}
	if l.Price() != 1.85 {
		t.Fatalf("price not applied: %v", l.Price())
	}
	if l.State() != StateOpen {
		t.Fatalf("expected OPEN after replacement, got %s", l.State())
	}
}

func TestMovePriceAbortsWhenCancelFails(t *testing.T) {
	c := &stubClient{cancelErr: gateway.NewExchangeError(gateway.KindFatal, "cancel_order", errors.New("denied"))}
	l := NewLimitOrder(newTestGateway(c), testMarket(), false, nil, nil)
	if err := l.Create(context.Background(), SideBuy, 1, 1.90); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := l.MovePrice(context.Background(), 1.85); err == nil {
		t.Fatalf("unconfirmed cancellation must abort the move")
	}
	if c.placeCalls != 1 {
		t.Fatalf("no new order may be placed before cancellation confirms, got %d places", c.placeCalls)
	}
	if l.State() != StateError {
		t.Fatalf("expected ERROR, got %s", l.State())
	}
}

func TestMoveOnErrorStateLeavesLiveOrderUntouched(t *testing.T) {
	c := &stubClient{}
	l := NewLimitOrder(newTestGateway(c), testMarket(), false, nil, nil)
	if err := l.Create(context.Background(), SideBuy, 1, 1.90); err != nil {
		t.Fatalf("create: %v", err)
	}

	c.statusErr = gateway.NewExchangeError(gateway.KindFatal, "order_status", errors.New("down"))
	if err := l.Check(context.Background()); err == nil {
		t.Fatalf("expected status check failure")
	}
	if l.State() != StateError {
		t.Fatalf("expected ERROR, got %s", l.State())
	}

	// 错误态下改价必须整体中止：交易所侧订单原样保留，绝不只撤不挂。
	c.statusErr = nil
	err := l.MovePrice(context.Background(), 1.80)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %T: %v", err, err)
	}
	if c.cancelCalls != 0 {
		t.Fatalf("live order must not be cancelled without a replacement, got %d cancels", c.cancelCalls)
	}
	if c.placeCalls != 1 {
		t.Fatalf("expected no new placement, got %d places", c.placeCalls)
	}
	if l.ID() != "ex-1" {
		t.Fatalf("exchange id must survive the aborted move, got %q", l.ID())
	}
}

func TestMoveOnTerminalOrderIsNoOp(t *testing.T) {
	c := &stubClient{status: gateway.OrderState{Filled: true}}
	l := NewLimitOrder(newTestGateway(c), testMarket(), false, nil, nil)
	if err := l.Create(context.Background(), SideBuy, 1, 1.90); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := l.Check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}

	if err := l.MovePrice(context.Background(), 1.80); err != nil {
		t.Fatalf("move on terminal must be a logged no-op: %v", err)
	}
	if err := l.MoveAmount(context.Background(), 2); err != nil {
		t.Fatalf("move on terminal must be a logged no-op: %v", err)
	}
	if c.cancelCalls != 0 || c.placeCalls != 1 {
		t.Fatalf("terminal order must not be replaced, cancel=%d place=%d", c.cancelCalls, c.placeCalls)
	}
}

func TestPendingMovesCoalesceLastWriterWins(t *testing.T) {
	c := &stubClient{status: gateway.OrderState{Open: true}}
	l := NewLimitOrder(newTestGateway(c), testMarket(), false, nil, nil)
	if err := l.Create(context.Background(), SideBuy, 1, 1.90); err != nil {
		t.Fatalf("create: %v", err)
	}

	// 模拟转换进行中收到的请求：只排队，不执行。
	l.state = StateChecking
	if err := l.MovePrice(context.Background(), 1.80); err != nil {
		t.Fatalf("queue move: %v", err)
	}
	if err := l.MovePrice(context.Background(), 1.70); err != nil {
		t.Fatalf("queue move: %v", err)
	}
	if err := l.MoveAmount(context.Background(), 3); err != nil {
		t.Fatalf("queue amount: %v", err)
	}
	if c.cancelCalls != 0 {
		t.Fatalf("queued moves must not touch the exchange")
	}

	// 回到稳定状态后统一应用：一次替换携带两个槽位的最新值。
	l.state = StateOpen
	if err := l.Check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if c.cancelCalls != 1 || c.placeCalls != 2 {
		t.Fatalf("expected single coalesced replacement, cancel=%d place=%d", c.cancelCalls, c.placeCalls)
	}
	if l.Price() != 1.70 {
		t.Fatalf("last queued price must win, got %v", l.Price())
	}
	if l.Amount() != 3 {
		t.Fatalf("last queued amount must win, got %v", l.Amount())
	}
}

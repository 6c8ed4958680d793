package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"order-exec-go/gateway"
	"order-exec-go/infrastructure/logger"
	"order-exec-go/market"
	"order-exec-go/monitor"
)

// Order 单个订单的生命周期状态。一个订单在其整个生命周期内
// 由恰好一个控制器持有；共享可变状态的同步在网关内完成，
// 订单本身按单一持有者顺序访问。
type Order struct {
	gw      *gateway.Gateway
	log     *logger.Logger
	metrics *monitor.Metrics
	machine *StateMachine
	market  market.Market

	id           string
	clientID     string
	side         Side
	amount       float64
	price        float64
	filledAmount float64
	state        State
	completed    bool

	// 转换进行中排队的改价/改量请求，后写覆盖先写。
	pendingPrice  *float64
	pendingAmount *float64

	// CheckInterval 轮询状态的建议间隔。
	CheckInterval time.Duration
}

func newOrder(gw *gateway.Gateway, mkt market.Market, log *logger.Logger, metrics *monitor.Metrics) *Order {
	if log == nil {
		log = logger.Nop()
	}
	return &Order{
		gw:            gw,
		log:           log,
		metrics:       metrics,
		machine:       NewStateMachine(),
		market:        mkt,
		clientID:      uuid.NewString(),
		state:         StateInitializing,
		CheckInterval: 1500 * time.Millisecond,
	}
}

// ID 交易所分配的订单身份；SUBMITTED 成功前为空。
func (o *Order) ID() string { return o.id }

// ClientID 本地生成的客户端订单标识。
func (o *Order) ClientID() string { return o.clientID }

// State 当前生命周期状态。
func (o *Order) State() State { return o.state }

// Side 买卖方向。
func (o *Order) Side() Side { return o.side }

// Amount 请求数量。
func (o *Order) Amount() float64 { return o.amount }

// Price 当前工作价格。
func (o *Order) Price() float64 { return o.price }

// FilledAmount 已成交数量。
func (o *Order) FilledAmount() float64 { return o.filledAmount }

// Completed 订单是否已完结；一旦置位永不回退。
func (o *Order) Completed() bool { return o.completed }

// PollInterval 轮询状态的建议间隔。
func (o *Order) PollInterval() time.Duration { return o.CheckInterval }

// transition 执行一次状态转换并记录日志。非法转换（含终态上的任何
// 尝试）记录后按 no-op 处理。
func (o *Order) transition(to State) bool {
	if err := o.machine.Validate(o.state, to); err != nil {
		o.log.Warn("state transition ignored",
			zap.String("order_id", o.id),
			zap.String("client_id", o.clientID),
			zap.Error(err))
		return false
	}
	from := o.state
	o.state = to
	o.log.LogTransition(o.id, string(from), string(to), zap.String("client_id", o.clientID))
	return true
}

// Submit 提交订单。要求处于 INITIALIZING（或改价路径的 MOVING）；
// 成功后记录交易所身份并进入 OPEN，失败进入 ERROR 并上抛底层错误。
func (o *Order) Submit(ctx context.Context, side Side, amount, price float64) error {
	if o.state.Terminal() {
		o.log.Warn("submit ignored",
			zap.String("order_id", o.id),
			zap.Error(&TransitionError{From: o.state, To: StateSubmitted}))
		return nil
	}
	if o.state != StateInitializing && o.state != StateMoving {
		o.log.Warn("submit ignored: incompatible state",
			zap.String("order_id", o.id), zap.String("state", string(o.state)))
		return nil
	}
	o.side = side
	o.amount = amount
	o.price = price
	o.transition(StateSubmitted)

	ack, err := o.gw.PlaceOrder(ctx, string(side), amount, price, o.market.Pair)
	if err != nil {
		o.transition(StateError)
		return fmt.Errorf("submit order: %w", err)
	}
	o.id = ack.ID
	o.transition(StateOpen)
	o.metrics.OrderSubmitted()
	return nil
}

// CheckStatus 查询交易所侧状态：成交进入 FILLED，被交易所终结进入
// REJECTED，仍然挂着则经 CHECKED 回到 OPEN 等待下一轮轮询。
// ERROR 态的订单由此恢复：上一轮的瞬时失败不会把订单困在错误态。
func (o *Order) CheckStatus(ctx context.Context) error {
	if o.state.Terminal() {
		o.log.Warn("status check ignored",
			zap.String("order_id", o.id),
			zap.Error(&TransitionError{From: o.state, To: StateChecking}))
		return nil
	}
	if o.id == "" {
		return fmt.Errorf("no order id to check")
	}
	if !o.transition(StateChecking) {
		return &TransitionError{From: o.state, To: StateChecking}
	}

	st, err := o.gw.OrderStatus(ctx, o.id)
	if err != nil {
		o.transition(StateError)
		return fmt.Errorf("check order %s: %w", o.id, err)
	}
	switch {
	case st.Filled:
		// 完结标志只随被接受的 FILLED 转换一起落地。
		if o.transition(StateFilled) {
			o.completed = true
			o.filledAmount = o.amount
			if st.Price > 0 {
				o.price = st.Price
			}
			o.metrics.OrderFilled()
		}
	case !st.Open:
		o.transition(StateRejected)
		o.metrics.OrderRejected()
	default:
		o.transition(StateChecked)
		o.transition(StateOpen)
	}
	return nil
}

// Cancel 请求撤单，确认后进入 CANCELLED。
func (o *Order) Cancel(ctx context.Context) error {
	if o.state.Terminal() {
		o.log.Warn("cancel ignored",
			zap.String("order_id", o.id),
			zap.Error(&TransitionError{From: o.state, To: StateCancelled}))
		return nil
	}
	if o.id == "" {
		return fmt.Errorf("no order id to cancel")
	}
	if err := o.gw.CancelOrder(ctx, o.id); err != nil {
		o.transition(StateError)
		return fmt.Errorf("cancel order %s: %w", o.id, err)
	}
	o.transition(StateCancelled)
	o.metrics.OrderCancelled()
	return nil
}

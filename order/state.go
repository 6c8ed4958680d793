package order

// Side 买卖方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid 检查方向是否合法。
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// State represents order lifecycle.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateSubmitted    State = "SUBMITTED"
	StateMoving       State = "MOVING"
	StateOpen         State = "OPEN"
	StateChecking     State = "CHECKING"
	StateChecked      State = "CHECKED"
	StateFilled       State = "FILLED"
	StateCancelled    State = "CANCELLED"
	StateRejected     State = "REJECTED"
	StateError        State = "ERROR"
)

// Terminal 终态不允许任何后续转换。
func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateRejected:
		return true
	default:
		return false
	}
}

// InTransition 订单正处于一次交易所往返之中；此时的改价/改量请求
// 只能排队，不能立即执行。
func (s State) InTransition() bool {
	switch s {
	case StateSubmitted, StateMoving, StateChecking:
		return true
	default:
		return false
	}
}

package order

import "fmt"

// TransitionError 在终态或不兼容状态上尝试了操作。
// 按约定记录日志并视为 no-op，绝不致命。
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal state transition: %s -> %s", e.From, e.To)
}

// CrossesBookError post-only 限价单会立即吃掉对手盘。
// 在提交之前产生，不触发任何交易所调用，也不可重试。
type CrossesBookError struct {
	Side  Side
	Price float64
	Best  float64
}

func (e *CrossesBookError) Error() string {
	return fmt.Sprintf("post-only %s limit at %.8f crosses the book (best %.8f)", e.Side, e.Price, e.Best)
}

package order

// 状态转换定义
type transition struct {
	From State
	To   State
}

// StateMachine 订单状态机：校验所有状态转换的合法性。
type StateMachine struct {
	transitions map[transition]bool
}

// NewStateMachine 创建新的状态机。
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[transition]bool)}
	sm.initializeTransitions()
	return sm
}

// initializeTransitions 初始化所有合法的状态转换。
func (sm *StateMachine) initializeTransitions() {
	legal := []transition{
		{StateInitializing, StateSubmitted},

		{StateSubmitted, StateOpen},

		{StateOpen, StateChecking},
		{StateOpen, StateMoving},

		{StateChecking, StateChecked},
		{StateChecking, StateFilled},
		{StateChecking, StateRejected},

		{StateChecked, StateOpen},
		{StateChecked, StateMoving},

		// 改价路径：撤销确认后重新提交
		{StateMoving, StateSubmitted},

		// 错误态不是陷阱：下一次状态检查即可恢复
		{StateError, StateChecking},
	}
	for _, t := range legal {
		sm.transitions[t] = true
	}
	// 任何非终态都可以被撤销或进入错误态
	for _, from := range []State{
		StateInitializing, StateSubmitted, StateMoving,
		StateOpen, StateChecking, StateChecked, StateError,
	} {
		sm.transitions[transition{from, StateCancelled}] = true
		sm.transitions[transition{from, StateError}] = true
	}
}

// Validate 验证状态转换是否合法；相同状态幂等放行。
func (sm *StateMachine) Validate(from, to State) error {
	if from == to {
		return nil
	}
	if from.Terminal() {
		return &TransitionError{From: from, To: to}
	}
	if !sm.transitions[transition{From: from, To: to}] {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Allowed 返回当前状态所有合法的目标状态。
func (sm *StateMachine) Allowed(current State) []State {
	out := make([]State, 0)
	for t := range sm.transitions {
		if t.From == current {
			out = append(out, t.To)
		}
	}
	return out
}

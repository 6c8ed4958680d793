package market

import "math"

// MinimalOrder 交易所允许的最小下单限制。
type MinimalOrder struct {
	Amount float64 `yaml:"amount"`
	Price  float64 `yaml:"price"`
}

// PriceRule 可插拔的价格校验规则（例如交易所自定义的 tick 对齐）。
type PriceRule func(price float64) bool

// Market 描述一个交易对及其下单约束。
type Market struct {
	Pair         string
	MinimalOrder MinimalOrder
	TickSize     float64
	StepSize     float64
	// PriceRule 可选；为空时退回 tick 对齐 + 最小价格检查。
	PriceRule PriceRule
}

// ValidationError 订单意图未通过市场约束校验。
// 始终在任何交易所调用之前产生，调用方可修正后重试。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid order: " + e.Reason
}

// RoundPrice 将价格对齐到最近的 tick。
func (m Market) RoundPrice(price float64) float64 {
	if m.TickSize <= 0 {
		return price
	}
	return math.Round(price/m.TickSize) * m.TickSize
}

// RoundAmount 向下对齐到数量步长，避免提交交易所不接受的精度。
func (m Market) RoundAmount(amount float64) float64 {
	if m.StepSize <= 0 {
		return amount
	}
	return math.Floor(amount/m.StepSize+1e-9) * m.StepSize
}

// ValidPrice 检查价格是否满足市场规则。
func (m Market) ValidPrice(price float64) bool {
	if price < m.MinimalOrder.Price {
		return false
	}
	if m.PriceRule != nil {
		return m.PriceRule(price)
	}
	if m.TickSize > 0 && !isMultiple(price, m.TickSize) {
		return false
	}
	return true
}

// Validate 校验订单意图；price 为负表示未给出价格。
func (m Market) Validate(amount, price float64) error {
	if amount < m.MinimalOrder.Amount {
		return &ValidationError{Reason: "Amount is too small"}
	}
	if price >= 0 && !m.ValidPrice(price) {
		return &ValidationError{Reason: "Price is not valid"}
	}
	return nil
}

func isMultiple(value, step float64) bool {
	if step <= 0 {
		return true
	}
	ratio := value / step
	return math.Abs(ratio-math.Round(ratio)) <= 1e-8
}

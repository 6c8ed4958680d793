package broker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"order-exec-go/gateway"
	"order-exec-go/infrastructure/logger"
)

// Portfolio 账户侧状态：余额、手续费、最近盘口。
type Portfolio struct {
	gw  *gateway.Gateway
	log *logger.Logger

	currency string
	asset    string

	mu       sync.RWMutex
	balances map[string]float64
	fee      float64
	ticker   gateway.Ticker
}

// Valuation 统一口径的账户估值。
type Valuation struct {
	Asset    float64
	Currency float64
	Total    float64
}

func NewPortfolio(gw *gateway.Gateway, currency, asset string, log *logger.Logger) *Portfolio {
	if log == nil {
		log = logger.Nop()
	}
	return &Portfolio{
		gw:       gw,
		log:      log,
		currency: currency,
		asset:    asset,
		balances: make(map[string]float64),
	}
}

// SetBalances 拉取并缓存本交易对涉及的两个资金账户余额。
func (p *Portfolio) SetBalances(ctx context.Context) error {
	all, err := p.gw.Balances(ctx)
	if err != nil {
		return fmt.Errorf("set balances: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances = make(map[string]float64, 2)
	for _, b := range all {
		if b.Name == p.currency || b.Name == p.asset {
			p.balances[b.Name] = b.Amount
		}
	}
	p.log.Info("balances updated", zap.Any("balances", p.balances))
	return nil
}

// SetFee 拉取并缓存手续费率。
func (p *Portfolio) SetFee(ctx context.Context) error {
	fee, err := p.gw.Fee(ctx)
	if err != nil {
		return fmt.Errorf("set fee: %w", err)
	}
	p.mu.Lock()
	p.fee = fee
	p.mu.Unlock()
	p.log.Info("trading fee updated", zap.Float64("fee", fee))
	return nil
}

// GetBalance 返回指定资金账户的余额，未知账户返回 0。
func (p *Portfolio) GetBalance(fund string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balances[fund]
}

// Fee 当前手续费率。
func (p *Portfolio) Fee() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fee
}

// SetTicker 记录最近盘口，用于估值。
func (p *Portfolio) SetTicker(t gateway.Ticker) {
	p.mu.Lock()
	p.ticker = t
	p.mu.Unlock()
}

// ConvertBalances 把余额折算成统一估值：资产按最优买价计价。
func (p *Portfolio) ConvertBalances() Valuation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	asset := p.balances[p.asset]
	currency := p.balances[p.currency]
	return Valuation{
		Asset:    asset,
		Currency: currency,
		Total:    currency + asset*p.ticker.Bid,
	}
}

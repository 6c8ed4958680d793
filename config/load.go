package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"order-exec-go/gateway"
	"order-exec-go/infrastructure/logger"
	"order-exec-go/market"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string                  `yaml:"env"`
	Broker      BrokerConfig            `yaml:"broker"`
	Exchange    ExchangeConfig          `yaml:"exchange"`
	Resilience  ResilienceConfig        `yaml:"resilience"`
	Markets     map[string]MarketConfig `yaml:"markets"`
	Stream      StreamConfig            `yaml:"stream"`
	Log         logger.Config           `yaml:"log"`
	MetricsAddr string                  `yaml:"metricsAddr"`
}

type BrokerConfig struct {
	Private  bool   `yaml:"private"`
	Currency string `yaml:"currency"`
	Asset    string `yaml:"asset"`
}

type ExchangeConfig struct {
	BaseURL   string `yaml:"baseURL"`
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
}

// ResilienceConfig 网关的弹性参数。
type ResilienceConfig struct {
	Retry      RetryConfig                `yaml:"retry"`
	Breaker    BreakerConfig              `yaml:"breaker"`
	RateLimits map[string]RateLimitConfig `yaml:"rateLimits"`
	// CacheTTLMs 按操作类覆盖缓存TTL（毫秒），key 为操作名。
	CacheTTLMs map[string]int `yaml:"cacheTTLMs"`
}

type RetryConfig struct {
	Retries int     `yaml:"retries"`
	DelayMs int     `yaml:"delayMs"`
	Backoff float64 `yaml:"backoff"`
}

type BreakerConfig struct {
	MaxErrors     int `yaml:"maxErrors"`
	CooldownSec   int `yaml:"cooldownSec"`
	IdleWindowSec int `yaml:"idleWindowSec"`
}

type RateLimitConfig struct {
	MaxRequests int `yaml:"max_requests"`
	PeriodSec   int `yaml:"period_seconds"`
}

// MarketConfig 交易对的下单约束。
type MarketConfig struct {
	MinimalOrder market.MinimalOrder `yaml:"minimalOrder"`
	TickSize     float64             `yaml:"tickSize"`
	StepSize     float64             `yaml:"stepSize"`
}

type StreamConfig struct {
	URL   string   `yaml:"url"`
	Pairs []string `yaml:"pairs"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("OE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("OE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Broker.Private && (cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "") {
		return errors.New("exchange.apiKey/apiSecret is required in private mode (or env overrides)")
	}
	if len(cfg.Markets) == 0 {
		return errors.New("markets config is required")
	}
	for pair, mc := range cfg.Markets {
		if mc.TickSize <= 0 {
			return fmt.Errorf("market %s tickSize must be > 0", pair)
		}
		if mc.MinimalOrder.Amount < 0 || mc.MinimalOrder.Price < 0 {
			return fmt.Errorf("market %s minimalOrder bounds must be >= 0", pair)
		}
	}
	if cfg.Resilience.Retry.Retries < 0 {
		return errors.New("resilience.retry.retries must be >= 0")
	}
	if cfg.Resilience.Retry.Backoff < 0 {
		return errors.New("resilience.retry.backoff must be >= 0")
	}
	for ep, rl := range cfg.Resilience.RateLimits {
		if rl.MaxRequests <= 0 || rl.PeriodSec <= 0 {
			return fmt.Errorf("rate limit %s requires positive max_requests and period_seconds", ep)
		}
	}
	if cfg.Resilience.Breaker.MaxErrors < 0 || cfg.Resilience.Breaker.CooldownSec < 0 {
		return errors.New("resilience.breaker values must be >= 0")
	}
	return nil
}

// GatewayConfig 把弹性配置转换成网关配置，未覆盖的项取默认值。
func (r ResilienceConfig) GatewayConfig() gateway.Config {
	cfg := gateway.Config{
		Retry:    gateway.DefaultRetryPolicy(),
		Breaker:  gateway.DefaultBreakerConfig(),
		Policies: gateway.DefaultPolicies(),
	}
	if r.Retry.Retries > 0 {
		cfg.Retry = gateway.RetryPolicy{
			Retries: r.Retry.Retries,
			Delay:   time.Duration(r.Retry.DelayMs) * time.Millisecond,
			Backoff: r.Retry.Backoff,
		}
	}
	if r.Breaker.MaxErrors > 0 {
		cfg.Breaker = gateway.BreakerConfig{
			MaxErrors:  r.Breaker.MaxErrors,
			Cooldown:   time.Duration(r.Breaker.CooldownSec) * time.Second,
			IdleWindow: time.Duration(r.Breaker.IdleWindowSec) * time.Second,
		}
	}
	if len(r.RateLimits) > 0 {
		cfg.Windows = make(map[string]gateway.WindowConfig, len(r.RateLimits))
		for ep, rl := range r.RateLimits {
			cfg.Windows[ep] = gateway.WindowConfig{
				MaxRequests: rl.MaxRequests,
				Period:      time.Duration(rl.PeriodSec) * time.Second,
			}
		}
	}
	for op, ttlMs := range r.CacheTTLMs {
		pol := cfg.Policies[gateway.Op(op)]
		pol.CacheTTL = time.Duration(ttlMs) * time.Millisecond
		cfg.Policies[gateway.Op(op)] = pol
	}
	return cfg
}

// Market 把市场配置转换成领域对象。
func (m MarketConfig) Market(pair string) market.Market {
	return market.Market{
		Pair:         pair,
		MinimalOrder: m.MinimalOrder,
		TickSize:     m.TickSize,
		StepSize:     m.StepSize,
	}
}

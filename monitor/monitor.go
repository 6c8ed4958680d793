package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics Prometheus指标收集器。所有方法对 nil 接收者安全，
// 未接监控的组件可以直接传 nil。
type Metrics struct {
	registry *prometheus.Registry

	// 网关指标
	gatewayRequests *prometheus.CounterVec
	gatewayErrors   *prometheus.CounterVec
	gatewayRetries  *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	cacheHits       *prometheus.CounterVec
	rateLimitWaits  *prometheus.CounterVec
	rateLimitDelay  *prometheus.CounterVec
	breakerTrips    prometheus.Counter

	// 订单生命周期指标
	ordersSubmitted prometheus.Counter
	ordersFilled    prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersRejected  prometheus.Counter
	ordersFailed    prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Namespace: "oe", Subsystem: "exec"}
}

// New 创建新的Metrics实例，使用独立registry避免全局冲突。
func New(cfg Config) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.gatewayRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "gateway_requests_total", Help: "Outbound exchange requests by operation.",
	}, []string{"op"})
	m.gatewayErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "gateway_errors_total", Help: "Exchange errors by operation and classification.",
	}, []string{"op", "kind"})
	m.gatewayRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "gateway_retries_total", Help: "Retry attempts scheduled by operation.",
	}, []string{"op"})
	m.gatewayLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "gateway_latency_seconds", Help: "Exchange request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	m.cacheHits = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "cache_hits_total", Help: "Responses served from the gateway cache.",
	}, []string{"op"})
	m.rateLimitWaits = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "rate_limit_waits_total", Help: "Calls delayed by the sliding window limiter.",
	}, []string{"endpoint"})
	m.rateLimitDelay = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "rate_limit_delay_seconds_total", Help: "Total seconds spent blocked on rate limits.",
	}, []string{"endpoint"})
	m.breakerTrips = factory.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "breaker_trips_total", Help: "Circuit breaker trips.",
	})

	m.ordersSubmitted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "orders_submitted_total", Help: "Orders accepted by the exchange.",
	})
	m.ordersFilled = factory.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "orders_filled_total", Help: "Orders that reached FILLED.",
	})
	m.ordersCancelled = factory.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "orders_cancelled_total", Help: "Orders that reached CANCELLED.",
	})
	m.ordersRejected = factory.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "orders_rejected_total", Help: "Orders killed or expired by the exchange.",
	})
	m.ordersFailed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
		Name: "orders_failed_total", Help: "Orders left in failed status after execution.",
	})

	return m
}

// Handler 返回 /metrics 的HTTP处理器。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) GatewayRequest(op string) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(op).Inc()
}

func (m *Metrics) GatewayError(op, kind string) {
	if m == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) GatewayRetry(op string) {
	if m == nil {
		return
	}
	m.gatewayRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) GatewayLatency(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) CacheHit(op string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(op).Inc()
}

func (m *Metrics) RateLimitWait(endpoint string, d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWaits.WithLabelValues(endpoint).Inc()
	m.rateLimitDelay.WithLabelValues(endpoint).Add(d.Seconds())
}

func (m *Metrics) BreakerTrip() {
	if m == nil {
		return
	}
	m.breakerTrips.Inc()
}

func (m *Metrics) OrderSubmitted() {
	if m == nil {
		return
	}
	m.ordersSubmitted.Inc()
}

func (m *Metrics) OrderFilled() {
	if m == nil {
		return
	}
	m.ordersFilled.Inc()
}

func (m *Metrics) OrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

func (m *Metrics) OrderRejected() {
	if m == nil {
		return
	}
	m.ordersRejected.Inc()
}

func (m *Metrics) OrderFailed() {
	if m == nil {
		return
	}
	m.ordersFailed.Inc()
}

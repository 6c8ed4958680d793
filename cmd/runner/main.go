package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"order-exec-go/broker"
	"order-exec-go/config"
	"order-exec-go/gateway"
	"order-exec-go/infrastructure/logger"
	"order-exec-go/monitor"
	"order-exec-go/stream"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	pair := flag.String("pair", "", "交易对（默认取配置里第一个市场）")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置；留空用配置值")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Close()

	pairUpper := strings.ToUpper(*pair)
	if pairUpper == "" {
		for p := range cfg.Markets {
			pairUpper = p
			break
		}
	}
	mktCfg, ok := cfg.Markets[pairUpper]
	if !ok {
		lg.Fatal("pair not found in config", zap.String("pair", pairUpper))
	}
	mkt := mktCfg.Market(pairUpper)

	metrics := monitor.New(monitor.DefaultConfig())
	addr := cfg.MetricsAddr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	if addr != "" {
		go serveMetrics(addr, metrics, lg)
	}

	restClient := &gateway.RESTClient{
		BaseURL:    cfg.Exchange.BaseURL,
		APIKey:     cfg.Exchange.APIKey,
		Secret:     cfg.Exchange.APISecret,
		HTTPClient: gateway.NewDefaultHTTPClient(),
	}
	gw := gateway.New(restClient, cfg.Resilience.GatewayConfig(),
		gateway.WithLogger(lg.Named("gateway")),
		gateway.WithMetrics(metrics))

	brk := broker.New(broker.Config{
		Private:  cfg.Broker.Private,
		Currency: cfg.Broker.Currency,
		Asset:    cfg.Broker.Asset,
	}, gw, mkt, lg.Named("broker"), metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 配置热更新：运行中调整重试参数。
	if reloader, err := config.NewHotReloader(*cfgPath, config.DefaultHotReloadConfig()); err == nil {
		reloader.OnReload(func(next config.AppConfig) {
			gw.SetRetryPolicy(next.Resilience.GatewayConfig().Retry)
			lg.Info("resilience config reloaded")
		})
		go func() {
			if err := reloader.Run(ctx); err != nil && ctx.Err() == nil {
				lg.Warn("config watcher stopped", zap.Error(err))
			}
		}()
	} else {
		lg.Warn("config watcher unavailable", zap.Error(err))
	}

	// 行情流：盘口推送时保持经纪内部盘口新鲜。
	if cfg.Stream.URL != "" {
		listener := stream.New(cfg.Stream.URL, cfg.Stream.Pairs, lg.Named("stream"))
		listener.Subscribe(func(msg []byte) {
			if t, err := stream.DecodeTicker(msg); err == nil {
				lg.Debug("ticker update",
					zap.String("pair", t.Pair),
					zap.Float64("bid", t.Bid),
					zap.Float64("ask", t.Ask))
			}
		})
		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				lg.Error("stream listener stopped", zap.Error(err))
			}
		}()
	}

	lg.Info("runner started",
		zap.String("pair", pairUpper),
		zap.Bool("private", cfg.Broker.Private))

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			lg.Info("shutting down")
			return
		case <-ticker.C:
			if err := brk.Sync(ctx); err != nil && ctx.Err() == nil {
				lg.Error("sync failed", zap.Error(err))
			}
		}
	}
}

func serveMetrics(addr string, metrics *monitor.Metrics, lg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		lg.Warn("metrics server stopped", zap.Error(err))
	}
}

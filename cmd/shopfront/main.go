package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ShopFront/internal/api"
	"ShopFront/internal/cart"
	"ShopFront/internal/catalog"
	"ShopFront/internal/config"
	"ShopFront/internal/query"
	"ShopFront/internal/storage"
	"ShopFront/pkg/kit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		kit.NewLogger("shopfront", "info").Fatal("config", zap.Error(err))
	}

	log := kit.NewLogger(cfg.Service.Name, cfg.Service.LogLevel)
	defer func() { _ = log.Sync() }()

	kv, err := storage.OpenBadger(cfg.Storage.Dir)
	if err != nil {
		log.Fatal("open storage", zap.Error(err))
	}
	defer func() { _ = kv.Close() }()

	registry := prometheus.NewRegistry()

	store := cart.NewStore()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	bridge := cart.NewBridge(ctx, kv, store, log)
	cancel()
	defer bridge.Close()

	unobserve := cart.NewMetrics(registry).Observe(store)
	defer unobserve()

	cache := query.NewCache(
		catalog.NewClient(cfg.Catalog.BaseURL),
		log,
		query.NewMetrics(registry),
	)

	h := api.NewHandler(
		&api.Server{Cache: cache, Cart: store, KV: kv, Log: log},
		api.HTTPDeps{
			Log:             log,
			Service:         cfg.Service.Name,
			Registry:        registry,
			MetricsEnabled:  cfg.Metrics.Enabled,
			MetricsToken:    cfg.Metrics.Token,
			RateLimit:       cfg.HTTP.RateLimit,
			RateLimitWindow: cfg.HTTP.RateLimitWindow,
		},
	)

	if err := kit.RunHTTPServer(context.Background(), cfg.HTTP.Addr, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

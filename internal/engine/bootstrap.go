package engine

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"benchml/internal/cache"
	"benchml/internal/config"
	"benchml/internal/logging"
	"benchml/internal/telemetry"
)

// Bootstrap wires logger, metrics and the precompute cache from cfg.
func Bootstrap(ctx context.Context, cfg config.EngineConfig) (*Engine, error) {
	// 1. logger
	log := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	// 2. metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)
	if cfg.MetricsPort > 0 {
		telemetry.Expose(cfg.MetricsPort, reg)
		log.Info("metrics exposed", "port", cfg.MetricsPort)
	}

	e := &Engine{cfg: cfg, log: log, metrics: metrics, registry: reg}

	// 3. precompute cache
	switch cfg.Cache.Backend {
	case config.CacheMemory:
		e.cache = cache.NewMemory()
	case config.CacheRedis:
		rc := cfg.Cache.Redis
		opts := []cache.RedisOption{cache.WithTTL(rc.TTL)}
		if rc.Prefix != "" {
			opts = append(opts, cache.WithPrefix(rc.Prefix))
		}
		r := cache.NewRedis(rc.Addr, rc.Password, rc.DB, opts...)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("cache: redis %s: %w", rc.Addr, err)
		}
		e.cache = r
		e.closers = append(e.closers, r.Close)
	}
	log.Debug("engine ready", "cache", cfg.Cache.Backend)
	return e, nil
}

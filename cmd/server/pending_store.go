package main

import (
	"context"
	"log"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"shopgate/cmd/server/config"
	"shopgate/internal/checkout"
	pendingdb "shopgate/internal/db/pending"
)

// buildPendingStore wires the pending-transaction store. With a REDIS_URL it
// is backed by Redis, using key TTLs to block consumption and a deadline
// index the reaper sweeps; otherwise it runs in memory. Either way the
// reaper reports expired entries.
func buildPendingStore(ctx context.Context, checkoutCfg config.CheckoutConfig) (checkout.PendingStore, func(), error) {
	cfg, err := config.LoadRedis()
	if err != nil {
		return nil, nil, err
	}

	if cfg.URL == "" {
		log.Println("pending store: in-memory")
		return checkout.NewMemoryPendingStore(checkoutCfg.PendingTTL), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)
	if cfg.EnableOTel {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	log.Println("pending store: redis")
	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}
	return pendingdb.NewRedisPendingStore(client, checkoutCfg.PendingTTL), cleanup, nil
}

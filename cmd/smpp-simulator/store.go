package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/store"
)

// openStore builds the configured backend. The returned func releases its
// resources.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		slog.Info("Using in-memory message store", slog.Duration("ttl", cfg.TTL))
		return store.NewMemoryStore(cfg.TTL), func() {}, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("store: DATABASE_URL is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("store: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("store: ping postgres: %w", err)
		}
		slog.Info("Database connection established")
		return store.NewPostgresStore(pool), pool.Close, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("store: ping redis: %w", err)
		}
		slog.Info("Redis connection established", slog.String("addr", cfg.RedisAddr))
		return store.NewRedisStore(client, cfg.TTL), func() { _ = client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
}

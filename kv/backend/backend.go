// Package backend opens the kv.Store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-app-lock/internal/config"
	"github.com/jrsteele09/go-app-lock/kv"
	"github.com/jrsteele09/go-app-lock/kv/filekv"
	"github.com/jrsteele09/go-app-lock/kv/memkv"
	"github.com/jrsteele09/go-app-lock/kv/rediskv"
	"github.com/jrsteele09/go-app-lock/kv/sqlitekv"
	"github.com/redis/go-redis/v9"
)

const (
	Memory = "memory"
	File   = "file"
	Redis  = "redis"
	SQLite = "sqlite"
)

const sqliteFileName = "sessions.db"

func Open(ctx context.Context, cfg config.StoreConfig) (kv.Store, error) {
	switch cfg.GetStoreBackend() {
	case Memory:
		return memkv.New(), nil
	case File:
		return filekv.New(cfg.GetStorePath())
	case Redis:
		return openRedis(ctx, cfg)
	case SQLite:
		if err := os.MkdirAll(cfg.GetStorePath(), 0o700); err != nil {
			return nil, fmt.Errorf("[backend.Open] create %s: %w", cfg.GetStorePath(), err)
		}
		return sqlitekv.Open(ctx, filepath.Join(cfg.GetStorePath(), sqliteFileName))
	}
	return nil, fmt.Errorf("[backend.Open] unknown store backend %q", cfg.GetStoreBackend())
}

func openRedis(ctx context.Context, cfg config.StoreConfig) (kv.Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.GetRedisPassword(),
		DB:           cfg.GetRedisDB(),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[backend.Open] redis ping failed: %w", err)
	}
	return rediskv.New(client, rediskv.WithNamespace(cfg.GetRedisNamespace())), nil
}

// Package redis backs the seen-trade deduper with Redis SETNX+TTL, so the
// watcher survives restarts without re-alerting on trades it already saw.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pmwatch/internal/config"
)

type Deduper struct {
	log    zerolog.Logger
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
}

func Connect(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func NewDeduper(log zerolog.Logger, rdb *goredis.Client, cfg config.DedupeConfig) (*Deduper, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "pmwatch:seen:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Deduper{log: log, rdb: rdb, ttl: ttl, prefix: prefix}, nil
}

func (d *Deduper) Seen(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	// ok=true means the key is new, so the trade was not seen before.
	return !ok, nil
}

func (d *Deduper) Health(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}

func (d *Deduper) Close() error {
	return d.rdb.Close()
}

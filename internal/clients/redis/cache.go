package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/vidlens-backend/internal/pkg/ctxutil"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/utils"
)

// opTimeout caps every remote cache operation so a slow Redis can never
// stall the pipeline.
const opTimeout = 2 * time.Second

// RemoteCache is the optional network cache tier. A disabled instance is
// safe to call everywhere; operations are no-op misses.
type RemoteCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Enabled() bool
	Close() error
}

type remoteCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRemoteCache connects when REDIS_HOST is set and reachable; any other
// outcome yields a disabled tier and the cache degrades to local only.
func NewRemoteCache(logg *logger.Logger) RemoteCache {
	log := logg.With("service", "RemoteCache")

	host := strings.TrimSpace(utils.GetEnv("REDIS_HOST", "", logg))
	if host == "" {
		log.Info("Redis cache tier disabled (REDIS_HOST not set)")
		return &remoteCache{log: log}
	}
	port := utils.GetEnv("REDIS_PORT", "6379", logg)
	password := utils.GetEnv("REDIS_PASSWORD", "", logg)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        fmt.Sprintf("%s:%s", host, port),
		Password:    password,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable, running on local cache only", "error", err)
		_ = rdb.Close()
		return &remoteCache{log: log}
	}

	log.Info("Redis cache tier connected", "addr", fmt.Sprintf("%s:%s", host, port))
	return &remoteCache{log: log, rdb: rdb}
}

func (c *remoteCache) Enabled() bool { return c != nil && c.rdb != nil }

func (c *remoteCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), opTimeout)
	defer cancel()
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Debug("redis get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return raw, true
}

func (c *remoteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), opTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Debug("redis set failed", "key", key, "error", err)
	}
}

func (c *remoteCache) Delete(ctx context.Context, key string) {
	if !c.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), opTimeout)
	defer cancel()
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.log.Debug("redis delete failed", "key", key, "error", err)
	}
}

func (c *remoteCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-liveqa/internal/database"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix  = "liveqa:session:code:"
	DefaultTTL = 5 * time.Minute
)

// cachedSession omits the presenter secret hash. Secret checks always read
// the repository.
type cachedSession struct {
	Id            string    `json:"id"`
	Code          string    `json:"code"`
	PresenterName string    `json:"presenterName"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// RedisSessionCache caches sessions by code. Redis failures are logged and
// treated as misses so lookups fall through to the repository.
type RedisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return rdb, nil
}

func NewRedisSessionCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisSessionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisSessionCache{client: client, ttl: ttl, log: log}
}

func key(code string) string {
	return keyPrefix + code
}

func (c *RedisSessionCache) Get(ctx context.Context, code string) (database.Session, bool) {
	raw, err := c.client.Get(ctx, key(code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("session cache get", zap.Error(err), zap.String("code", code))
		}
		return database.Session{}, false
	}

	var cs cachedSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		c.log.Warn("session cache decode", zap.Error(err), zap.String("code", code))
		return database.Session{}, false
	}

	return database.Session{
		Id:            cs.Id,
		Code:          cs.Code,
		PresenterName: cs.PresenterName,
		Active:        cs.Active,
		CreatedAt:     cs.CreatedAt,
		UpdatedAt:     cs.UpdatedAt,
	}, true
}

func (c *RedisSessionCache) Set(ctx context.Context, s database.Session) {
	raw, err := json.Marshal(cachedSession{
		Id:            s.Id,
		Code:          s.Code,
		PresenterName: s.PresenterName,
		Active:        s.Active,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	})
	if err != nil {
		c.log.Warn("session cache encode", zap.Error(err), zap.String("code", s.Code))
		return
	}

	if err := c.client.Set(ctx, key(s.Code), raw, c.ttl).Err(); err != nil {
		c.log.Warn("session cache set", zap.Error(err), zap.String("code", s.Code))
	}
}

func (c *RedisSessionCache) Delete(ctx context.Context, code string) {
	if err := c.client.Del(ctx, key(code)).Err(); err != nil {
		c.log.Warn("session cache delete", zap.Error(err), zap.String("code", code))
	}
}

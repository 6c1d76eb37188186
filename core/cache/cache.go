package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"

	"github.com/redis/go-redis/v9"
)

type Cache interface {
	// OAuth state nonces, bound to the admin that initiated the flow.
	SetOAuthState(ctx context.Context, state string, adminID string) error
	GetOAuthState(ctx context.Context, state string) (string, error)
	DeleteOAuthState(ctx context.Context, state string) error

	// JWT blacklist for logout.
	BlacklistToken(ctx context.Context, token string, ttl time.Duration) error
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)

	Client() *redis.Client
}

type redisCache struct {
	client *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisCache(cfg RedisConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("Redis cache initialized", "addr", cfg.Addr, "db", cfg.DB)
	return &redisCache{client: client}, nil
}

func (c *redisCache) SetOAuthState(ctx context.Context, state string, adminID string) error {
	return c.client.Set(ctx, constants.RedisKeyOAuthState+state, adminID, constants.OAuthStateTTL).Err()
}

func (c *redisCache) GetOAuthState(ctx context.Context, state string) (string, error) {
	val, err := c.client.Get(ctx, constants.RedisKeyOAuthState+state).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *redisCache) DeleteOAuthState(ctx context.Context, state string) error {
	return c.client.Del(ctx, constants.RedisKeyOAuthState+state).Err()
}

func (c *redisCache) BlacklistToken(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, constants.RedisKeyTokenBlacklist+token, "1", ttl).Err()
}

func (c *redisCache) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := c.client.Exists(ctx, constants.RedisKeyTokenBlacklist+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *redisCache) Client() *redis.Client {
	return c.client
}

// IsNil reports whether err is the redis key-miss sentinel.
func IsNil(err error) bool {
	return err == redis.Nil
}

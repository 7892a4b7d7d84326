package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/ride-dispatch/pkg/config"
)

// ErrNotFound is returned by GetString for a missing key.
var ErrNotFound = errors.New("redis: key not found")

// ClientInterface is the subset of Redis operations the HTTP layer uses.
type ClientInterface interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// Client wraps the Redis client
type Client struct {
	*redis.Client
}

// NewRedisClient creates a new Redis client and verifies the connection.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// SetNX stores value only when key is absent and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return withRetry(ctx, "redis.setnx", func(ctx context.Context) (bool, error) {
		return c.Client.SetNX(ctx, key, value, expiration).Result()
	})
}

// SetWithExpiration sets a key-value pair with expiration
func (c *Client) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	_, err := withRetry(ctx, "redis.set", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Set(ctx, key, value, expiration).Err()
	})
	return err
}

// GetString gets a string value by key. A missing key yields ErrNotFound.
func (c *Client) GetString(ctx context.Context, key string) (string, error) {
	value, err := withRetry(ctx, "redis.get", func(ctx context.Context) (string, error) {
		return c.Get(ctx, key).Result()
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

// Delete deletes a key
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.Del(ctx, keys...).Err()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

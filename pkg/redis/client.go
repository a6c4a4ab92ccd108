package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("redis: key not found")

// Client represents a Redis client
type Client struct {
	client *redis.Client
	logger logging.Logger
}

// NewClient connects to the Redis instance at redisURL (redis:// or rediss://) and pings it.
func NewClient(redisURL string, logger logging.Logger) (*Client, error) {
	if redisURL == "" {
		return nil, errors.New("redis URL is not set")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisClient := &Client{
		client: redis.NewClient(opt),
		logger: logger,
	}

	if err := redisClient.CheckConnection(); err != nil {
		_ = redisClient.client.Close()
		return nil, err
	}

	return redisClient, nil
}

// CheckConnection tests the Redis connection
func (c *Client) CheckConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.client.Ping(ctx).Result(); err != nil {
		c.logger.Errorf("Failed to connect to Redis: %v", err)
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.Info("Successfully connected to Redis")
	return nil
}

// Get retrieves a value from Redis by key
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	} else if err != nil {
		return "", err
	}
	return val, nil
}

// Set stores a key-value pair in Redis with an optional expiration
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Del removes keys from Redis
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c *Client) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return c.client.SAdd(ctx, key, members...).Err()
}

func (c *Client) SRem(ctx context.Context, key string, members ...interface{}) error {
	return c.client.SRem(ctx, key, members...).Err()
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.client.SMembers(ctx, key).Result()
}

// Client returns the underlying Redis client if direct access is needed
func (c *Client) Client() *redis.Client {
	return c.client
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	return c.client.Close()
}

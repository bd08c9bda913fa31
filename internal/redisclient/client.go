package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

// GetCart retrieves a user's cart. A missing key is an empty cart.
func (c *Client) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	data, err := c.rdb.Get(ctx, cartKey(userID)).Bytes()
	if err == redis.Nil {
		return &models.Cart{UserID: userID, Items: []models.CartItem{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart: %w", err)
	}
	return &cart, nil
}

// SetCart replaces a user's cart
func (c *Client) SetCart(ctx context.Context, cart *models.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to marshal cart: %w", err)
	}
	return c.rdb.Set(ctx, cartKey(cart.UserID), data, 0).Err()
}

// ClearCart removes a user's cart
func (c *Client) ClearCart(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, cartKey(userID)).Err()
}

// AcquirePollingLock claims the poller role for an order so only one replica
// polls it. The TTL should comfortably exceed the polling budget.
func (c *Client) AcquirePollingLock(ctx context.Context, orderID int64, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("polling_lock:%d", orderID), "1", ttl).Result()
}

// ReleasePollingLock releases the poller role for an order
func (c *Client) ReleasePollingLock(ctx context.Context, orderID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("polling_lock:%d", orderID)).Err()
}

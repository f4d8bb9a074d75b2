package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"polimarket/internal/models"

	"github.com/go-redis/redis/v8"
)

// Client caches idempotency keys and rendered invoices
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection
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

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func idempotencyKey(key string) string {
	return "idempotency:" + key
}

func invoiceKey(saleID int64) string {
	return fmt.Sprintf("invoice:%d", saleID)
}

// GetIdempotentSale returns the sale registered under key
func (c *Client) GetIdempotentSale(ctx context.Context, key string) (int64, bool, error) {
	value, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	saleID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency entry %q: %w", key, err)
	}
	return saleID, true, nil
}

// SetIdempotentSale stores key -> saleID unless the key is already taken
func (c *Client) SetIdempotentSale(ctx context.Context, key string, saleID int64, ttl time.Duration) error {
	return c.rdb.SetNX(ctx, idempotencyKey(key), saleID, ttl).Err()
}

// GetInvoice returns the cached invoice, or nil on a miss
func (c *Client) GetInvoice(ctx context.Context, saleID int64) (*models.Invoice, error) {
	data, err := c.rdb.Get(ctx, invoiceKey(saleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var invoice models.Invoice
	if err := json.Unmarshal(data, &invoice); err != nil {
		return nil, fmt.Errorf("failed to decode cached invoice for sale %d: %w", saleID, err)
	}
	return &invoice, nil
}

func (c *Client) SetInvoice(ctx context.Context, invoice *models.Invoice, ttl time.Duration) error {
	data, err := json.Marshal(invoice)
	if err != nil {
		return fmt.Errorf("failed to encode invoice: %w", err)
	}
	return c.rdb.Set(ctx, invoiceKey(invoice.SaleID), data, ttl).Err()
}

func (c *Client) InvalidateInvoice(ctx context.Context, saleID int64) error {
	return c.rdb.Del(ctx, invoiceKey(saleID)).Err()
}

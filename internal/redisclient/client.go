package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/unlock.lua
var unlockScript string

// consumed-hash marks outlive any realistic chain reorg window; the
// authoritative check is the database constraint, this is just the fast path.
const usedTxTTL = 90 * 24 * time.Hour

type Client struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewClient creates a new Redis client with the unlock script loaded
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

	return &Client{
		rdb:    rdb,
		unlock: redis.NewScript(unlockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// MarkTransactionUsed records a consumed transaction hash. Best-effort cache
// in front of the database uniqueness check.
func (c *Client) MarkTransactionUsed(ctx context.Context, txHash, bookingRef string) error {
	return c.rdb.SetNX(ctx, fmt.Sprintf("usedtx:%s", txHash), bookingRef, usedTxTTL).Err()
}

// IsTransactionUsed checks the consumed-hash cache.
func (c *Client) IsTransactionUsed(ctx context.Context, txHash string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf("usedtx:%s", txHash)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AcquireVerificationLock takes a per-booking/phase lock for the duration of
// a verification run. Returns false if another verification holds it.
func (c *Client) AcquireVerificationLock(ctx context.Context, bookingID int64, phase string, owner string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("verifylock:%d:%s", bookingID, phase)
	return c.rdb.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseVerificationLock releases the lock if owner still holds it.
func (c *Client) ReleaseVerificationLock(ctx context.Context, bookingID int64, phase string, owner string) error {
	key := fmt.Sprintf("verifylock:%d:%s", bookingID, phase)
	_, err := c.unlock.Run(ctx, c.rdb, []string{key}, owner).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("unlock script failed: %w", err)
	}
	return nil
}

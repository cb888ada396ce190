package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"kwetu-store/internal/auth"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim_session.lua
var claimSessionScript string

//go:embed scripts/release_claim.lua
var releaseClaimScript string

type Client struct {
	rdb           *redis.Client
	claimScript   *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		claimScript:   redis.NewScript(claimSessionScript),
		releaseScript: redis.NewScript(releaseClaimScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ClaimSession atomically claims a payment session for verification.
// Returns true if owner now holds the claim, false if another verifier does.
func (c *Client) ClaimSession(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("verify:%s", sessionID)

	result, err := c.claimScript.Run(ctx, c.rdb, []string{key}, owner, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("claim session script failed: %w", err)
	}

	claimed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return claimed == 1, nil
}

// ReleaseSession drops the claim if owner still holds it.
func (c *Client) ReleaseSession(ctx context.Context, sessionID, owner string) error {
	key := fmt.Sprintf("verify:%s", sessionID)

	_, err := c.releaseScript.Run(ctx, c.rdb, []string{key}, owner).Result()
	if err != nil {
		return fmt.Errorf("release claim script failed: %w", err)
	}

	return nil
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the stored value, or "" when the key is absent.
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// StoreResetToken remembers which user a password reset token belongs to.
func (c *Client) StoreResetToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("pwreset:%s", token), userID, ttl).Err()
}

// ConsumeResetToken returns the token's user and deletes the token in one step.
func (c *Client) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	userID, err := c.rdb.GetDel(ctx, fmt.Sprintf("pwreset:%s", token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", auth.ErrResetTokenNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

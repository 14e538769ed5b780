// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"coinflip-settlement/internal/domain"
)

// ConnectRedis opens a client and verifies the server is reachable.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// LockKey is the per-deposit settlement lock key.
func LockKey(depositReference string) string { return "settle:lock:" + depositReference }

func resultKey(depositReference string) string { return "settle:result:" + depositReference }

// ResultCache keeps settled results in Redis so repeated submissions skip the database.
type ResultCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewResultCache creates a ResultCache whose entries expire after ttl.
func NewResultCache(client goredis.UniversalClient, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

// Get returns the cached result for a deposit, or nil on a miss.
func (c *ResultCache) Get(ctx context.Context, depositReference string) (*domain.SettlementResult, error) {
	b, err := c.client.Get(ctx, resultKey(depositReference)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached result for %s: %w", depositReference, err)
	}

	var res domain.SettlementResult
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("failed to decode cached result for %s: %w", depositReference, err)
	}
	return &res, nil
}

// Set stores a settled result.
func (c *ResultCache) Set(ctx context.Context, res *domain.SettlementResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result for %s: %w", res.DepositReference, err)
	}
	if err := c.client.Set(ctx, resultKey(res.DepositReference), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result for %s: %w", res.DepositReference, err)
	}
	return nil
}

// NopResultCache never hits. It is used when Redis is not configured.
type NopResultCache struct{}

// Get always misses.
func (NopResultCache) Get(context.Context, string) (*domain.SettlementResult, error) { return nil, nil }

// Set discards the result.
func (NopResultCache) Set(context.Context, *domain.SettlementResult) error { return nil }

// Package leaderboard keeps a ranked copy of bounty balances in a Redis
// sorted set so leaderboard reads do not touch the ledger.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ernie/isle-tracker/internal/config"
	"github.com/ernie/isle-tracker/internal/domain"
)

// RedisIndex mirrors balances into one sorted set. Only positive balances
// are ranked.
type RedisIndex struct {
	client *redis.Client
	key    string
}

// NewRedisIndex connects to Redis and verifies the connection
func NewRedisIndex(ctx context.Context, cfg config.RedisConfig) (*RedisIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = config.Default().Redis.Key
	}
	return &RedisIndex{client: client, key: key}, nil
}

// Close closes the Redis connection
func (r *RedisIndex) Close() error {
	return r.client.Close()
}

// SetBalance records a player's balance, dropping them from the ranking at zero
func (r *RedisIndex) SetBalance(ctx context.Context, playerID string, balance int64) error {
	if balance <= 0 {
		if err := r.client.ZRem(ctx, r.key, playerID).Err(); err != nil {
			return fmt.Errorf("removing %s: %w", playerID, err)
		}
		return nil
	}
	err := r.client.ZAdd(ctx, r.key, redis.Z{
		Score:  float64(balance),
		Member: playerID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting balance: %w", err)
	}
	return nil
}

// TopPlayers returns up to limit player IDs, highest balance first
func (r *RedisIndex) TopPlayers(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := r.client.ZRevRange(ctx, r.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading top players: %w", err)
	}
	return ids, nil
}

// Rebuild replaces the sorted set with the given accounts atomically
func (r *RedisIndex) Rebuild(ctx context.Context, accounts []domain.Account) error {
	members := make([]redis.Z, 0, len(accounts))
	for _, a := range accounts {
		if a.Balance > 0 {
			members = append(members, redis.Z{Score: float64(a.Balance), Member: a.PlayerID})
		}
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, r.key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding leaderboard: %w", err)
	}
	return nil
}

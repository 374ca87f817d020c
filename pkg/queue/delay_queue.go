package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultQueueKey = "bookstall:orders:unpaid"

// DelayQueue schedules order ids to surface once their payment deadline
// passes.
type DelayQueue interface {
	Defer(ctx context.Context, orderID string, due time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
	Remove(ctx context.Context, orderID string) error
}

// RedisDelayQueue implements DelayQueue on a Redis sorted set keyed by
// deadline. Multiple sweeper instances can share one queue.
type RedisDelayQueue struct {
	client *redis.Client
	key    string
}

// NewRedisDelayQueue connects to Redis. An empty key selects the default.
func NewRedisDelayQueue(addr, password, key string) (*RedisDelayQueue, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisDelayQueue{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		key: key,
	}, nil
}

// Defer schedules the order id for the given deadline. Re-scheduling an id
// overwrites its deadline.
func (q *RedisDelayQueue) Defer(ctx context.Context, orderID string, due time.Time) error {
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(due.Unix()),
		Member: orderID,
	}).Err()
}

// Due returns up to limit order ids whose deadline is at or before now.
func (q *RedisDelayQueue) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	return q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
}

// Remove drops an order id from the schedule.
func (q *RedisDelayQueue) Remove(ctx context.Context, orderID string) error {
	return q.client.ZRem(ctx, q.key, orderID).Err()
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript prunes, counts and conditionally appends in one
// server-side step, so the sequence is atomic per key.
//
// KEYS[1] log key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] max requests,
// ARGV[4] member, ARGV[5] "1" to record an admitted request
//
// Returns {admitted, count, oldest (ms, -1 if empty), now (ms, skew-clamped)}.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

local newest = redis.call("ZRANGE", KEYS[1], -1, -1, "WITHSCORES")
if newest[2] and tonumber(newest[2]) > now then
  now = tonumber(newest[2])
end

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])

local admitted = 0
if count < max then
  admitted = 1
  if ARGV[5] == "1" then
    redis.call("ZADD", KEYS[1], now, ARGV[4])
    redis.call("PEXPIRE", KEYS[1], window)
    count = count + 1
  end
end

local oldest = -1
local first = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if first[2] then
  oldest = tonumber(first[2])
end

return {admitted, count, oldest, now}
`)

// RedisStore is a QuotaStore backed by Redis sorted sets.
//
// Each key's log is a sorted set scored by request time in milliseconds.
// Logs expire one window after their last admitted request, so Sweep has
// nothing to do.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	clock  Clock
}

// RedisStoreConfig holds configuration for RedisStore.
type RedisStoreConfig struct {
	// Prefix namespaces every key. Default: "ratelimit"
	Prefix string

	// Clock provides time operations for testing.
	// Default: SystemClock
	Clock Clock
}

// NewRedisStore creates a store using an existing Redis client.
func NewRedisStore(client redis.UniversalClient, config RedisStoreConfig) *RedisStore {
	prefix := strings.TrimSpace(config.Prefix)
	if prefix == "" {
		prefix = "ratelimit"
	}
	if config.Clock == nil {
		config.Clock = &SystemClock{}
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		clock:  config.Clock,
	}
}

func (s *RedisStore) redisKey(key Key) string {
	return s.prefix + ":" + key.Category + ":" + key.Client
}

// RecordAndEvaluate implements QuotaStore.
func (s *RedisStore) RecordAndEvaluate(ctx context.Context, key Key, category Category) (*Decision, error) {
	return s.eval(ctx, key, category, true)
}

// Peek implements QuotaStore.
func (s *RedisStore) Peek(ctx context.Context, key Key, category Category) (*Decision, error) {
	return s.eval(ctx, key, category, false)
}

func (s *RedisStore) eval(ctx context.Context, key Key, category Category, record bool) (*Decision, error) {
	now := s.clock.Now()
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	recordArg := "0"
	if record {
		recordArg = "1"
	}

	res, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.redisKey(key)},
		nowMs,
		category.Window.Milliseconds(),
		category.MaxRequests,
		member,
		recordArg,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: evaluate %s: %v", ErrStoreUnavailable, key, err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("%w: evaluate %s: unexpected reply length %d", ErrStoreUnavailable, key, len(res))
	}

	admitted := res[0] == 1
	count := int(res[1])
	if res[3] > nowMs {
		now = time.UnixMilli(res[3])
	}

	var oldest time.Time
	if res[2] >= 0 {
		oldest = time.UnixMilli(res[2])
	}

	return newDecision(key, category, count, oldest, now, admitted), nil
}

// Clear implements QuotaStore.
func (s *RedisStore) Clear(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: clear %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Sweep implements QuotaStore. Redis expires idle logs on its own.
func (s *RedisStore) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	return 0, nil
}

// Ping implements Pinger.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

package marketapi

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// consumeScript applies the rolling-window quota rules in one atomic EVAL:
// window reset on expiry, denial at capacity, increment plus one-shot alert
// detection otherwise. Running the whole check-then-increment inside Redis
// closes the race where two callers both observe "under capacity".
//
// Returns {granted, remaining, resetAtMs, alert}.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local threshold = tonumber(ARGV[4])

local ws = tonumber(redis.call('HGET', key, 'windowStart'))
if not ws then
  ws = now
  redis.call('HSET', key, 'windowStart', now, 'requestCount', 0, 'alertEmitted', 0)
end

if now - ws >= window then
  ws = now
  redis.call('HSET', key, 'windowStart', now, 'requestCount', 0, 'alertEmitted', 0)
end

local count = tonumber(redis.call('HGET', key, 'requestCount')) or 0
local resetAt = ws + window

if count >= capacity then
  return {0, 0, resetAt, 0}
end

count = redis.call('HINCRBY', key, 'requestCount', 1)

local alert = 0
if (count / capacity) >= threshold then
  local emitted = tonumber(redis.call('HGET', key, 'alertEmitted')) or 0
  if emitted == 0 then
    redis.call('HSET', key, 'alertEmitted', 1)
    alert = 1
  end
end

return {1, capacity - count, resetAt, alert}
`)

// failureScript increments the consecutive-failure counter and opens the
// breaker when the threshold is reached. Returns {failures, openUntilMs}.
var failureScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local cooldown = tonumber(ARGV[3])

local failures = redis.call('HINCRBY', key, 'failures', 1)
local openUntil = tonumber(redis.call('HGET', key, 'openUntil')) or 0
if failures >= threshold then
  openUntil = now + cooldown
  redis.call('HSET', key, 'openUntil', openUntil)
end
return {failures, openUntil}
`)

// RedisStateStore backs QuotaState and circuit-breaker state with Redis so
// stateless compute instances dispatched per request share one durable
// counter per bucket.
type RedisStateStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateStore creates a store on an existing client. An empty prefix
// defaults to "marketapi:bucket:".
func NewRedisStateStore(client *redis.Client, keyPrefix string) *RedisStateStore {
	if keyPrefix == "" {
		keyPrefix = "marketapi:bucket:"
	}
	return &RedisStateStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStateStore) key(bucket marketplace.Bucket) string {
	return s.keyPrefix + bucket.Key()
}

// Consume implements marketplace.StateStore.
func (s *RedisStateStore) Consume(ctx context.Context, bucket marketplace.Bucket, defaults marketplace.QuotaDefaults, now time.Time) (marketplace.QuotaDecision, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(bucket)},
		now.UnixMilli(), defaults.Capacity, defaults.Window.Milliseconds(), defaults.AlertThreshold,
	).Result()
	if err != nil {
		return marketplace.QuotaDecision{}, fmt.Errorf("quota consume for bucket %s: %w", bucket.Key(), err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 4 {
		return marketplace.QuotaDecision{}, fmt.Errorf("quota consume for bucket %s: unexpected script reply %v", bucket.Key(), res)
	}

	return marketplace.QuotaDecision{
		Granted:   toInt64(vals[0]) == 1,
		Remaining: int(toInt64(vals[1])),
		ResetAt:   time.UnixMilli(toInt64(vals[2])),
		Alert:     toInt64(vals[3]) == 1,
	}, nil
}

// RecordFailure implements marketplace.StateStore.
func (s *RedisStateStore) RecordFailure(ctx context.Context, bucket marketplace.Bucket, threshold int, cooldown time.Duration, now time.Time) (int, *time.Time, error) {
	res, err := failureScript.Run(ctx, s.client, []string{s.key(bucket)},
		now.UnixMilli(), threshold, cooldown.Milliseconds(),
	).Result()
	if err != nil {
		return 0, nil, fmt.Errorf("record failure for bucket %s: %w", bucket.Key(), err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, nil, fmt.Errorf("record failure for bucket %s: unexpected script reply %v", bucket.Key(), res)
	}

	failures := int(toInt64(vals[0]))
	var openUntil *time.Time
	if ms := toInt64(vals[1]); ms > 0 {
		t := time.UnixMilli(ms)
		openUntil = &t
	}
	return failures, openUntil, nil
}

// RecordSuccess implements marketplace.StateStore.
func (s *RedisStateStore) RecordSuccess(ctx context.Context, bucket marketplace.Bucket) error {
	key := s.key(bucket)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "failures", 0)
	pipe.HDel(ctx, key, "openUntil")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record success for bucket %s: %w", bucket.Key(), err)
	}
	return nil
}

// BreakerOpenUntil implements marketplace.StateStore.
func (s *RedisStateStore) BreakerOpenUntil(ctx context.Context, bucket marketplace.Bucket, now time.Time) (*time.Time, error) {
	ms, err := s.client.HGet(ctx, s.key(bucket), "openUntil").Int64()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("breaker state for bucket %s: %w", bucket.Key(), err)
	}
	openUntil := time.UnixMilli(ms)
	if !now.Before(openUntil) {
		return nil, nil
	}
	return &openUntil, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

var _ marketplace.StateStore = (*RedisStateStore)(nil)

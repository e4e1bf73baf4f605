package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript prunes, checks and appends for every key in one round trip.
// KEYS are the window keys; ARGV is now (ms), window (ms), member, then one
// limit per key. It returns {admitted, count1, count2, ...}.
var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local start = now - window
local result = {1}
for i, key in ipairs(KEYS) do
  redis.call('ZREMRANGEBYSCORE', key, '-inf', start)
  local n = redis.call('ZCARD', key)
  result[i + 1] = n
  if n >= tonumber(ARGV[3 + i]) then
    result[1] = 0
  end
end
if result[1] == 1 then
  for _, key in ipairs(KEYS) do
    redis.call('ZADD', key, now, ARGV[3])
    redis.call('PEXPIRE', key, window)
  end
end
return result
`)

// RedisWindowStore is a WindowStore on Redis sorted sets, so limits hold
// across server replicas.
type RedisWindowStore struct {
	client *redis.Client
	prefix string
}

// NewRedisWindowStore connects to redisURL.
func NewRedisWindowStore(redisURL string) (*RedisWindowStore, error) {
	const op = "NewRedisWindowStore"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, WrapAccessError(op, err, "invalid REDIS_URL")
	}

	return NewRedisWindowStoreWithClient(redis.NewClient(opt)), nil
}

// NewRedisWindowStoreWithClient wraps an existing client.
func NewRedisWindowStoreWithClient(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client, prefix: "leasecheck:window:"}
}

// Admit implements WindowStore.
func (s *RedisWindowStore) Admit(ctx context.Context, now time.Time, window time.Duration, keys ...WindowKey) (WindowResult, error) {
	const op = "Admit"

	redisKeys := make([]string, len(keys))
	args := make([]any, 0, 3+len(keys))
	args = append(args, now.UnixMilli(), window.Milliseconds(), fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()))
	for i, k := range keys {
		redisKeys[i] = s.prefix + k.Key
		args = append(args, k.Limit)
	}

	values, err := admitScript.Run(ctx, s.client, redisKeys, args...).Int64Slice()
	if err != nil {
		return WindowResult{}, storeError(op, err)
	}
	if len(values) != len(keys)+1 {
		return WindowResult{}, storeError(op, fmt.Errorf("unexpected script result %v", values))
	}

	result := WindowResult{Admitted: values[0] == 1, Counts: make([]int, len(keys))}
	for i := range keys {
		result.Counts[i] = int(values[i+1])
	}
	return result, nil
}

// Close closes the client.
func (s *RedisWindowStore) Close() error {
	return s.client.Close()
}

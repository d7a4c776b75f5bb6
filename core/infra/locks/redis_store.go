package locks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cordum/zipmark/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares locks between every worker pointed at the same Redis.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore constructs a Redis-backed lock store.
func NewRedisStore(url string) (*RedisStore, error) {
	client, err := redisutil.Connect(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// Close shuts down the Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Acquire sets the lock key when it is free.
func (s *RedisStore) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner, err := s.check(resource, owner)
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, lockKey(resource), owner, normalizeTTL(ttl)).Result()
}

// Release deletes the lock key if owner still holds it.
func (s *RedisStore) Release(ctx context.Context, resource, owner string) (bool, error) {
	resource, owner, err := s.check(resource, owner)
	if err != nil {
		return false, err
	}
	n, err := s.client.Eval(ctx, releaseScript, []string{lockKey(resource)}, owner).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Renew extends the lock TTL if owner still holds it.
func (s *RedisStore) Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner, err := s.check(resource, owner)
	if err != nil {
		return false, err
	}
	n, err := s.client.Eval(ctx, renewScript, []string{lockKey(resource)}, owner, normalizeTTL(ttl).Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) check(resource, owner string) (string, string, error) {
	if s == nil || s.client == nil {
		return "", "", fmt.Errorf("lock store unavailable")
	}
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return "", "", fmt.Errorf("resource and owner required")
	}
	return resource, owner, nil
}

func lockKey(resource string) string {
	return "zipmark:lock:" + resource
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

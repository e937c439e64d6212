package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokeTokenScript = `
if redis.call("HGET", KEYS[1], "revoked") == "0" then
  redis.call("HSET", KEYS[1], "revoked", "1", "revoked_at", ARGV[1])
  return 1
end
return 0
`

var revokeTokenLua = redis.NewScript(revokeTokenScript)

// Members whose record already expired out of Redis are pruned from the owner index.
const revokeOwnerScript = `
local members = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, h in ipairs(members) do
  local key = ARGV[1] .. h
  local state = redis.call("HGET", key, "revoked")
  if state == "0" then
    redis.call("HSET", key, "revoked", "1", "revoked_at", ARGV[2])
    revoked = revoked + 1
  elseif not state then
    redis.call("SREM", KEYS[1], h)
  end
end
return revoked
`

var revokeOwnerLua = redis.NewScript(revokeOwnerScript)

// RedisStore keeps each refresh token in a hash under <prefix>rt:<digest> and indexes
// digests per owner in the set <prefix>rto:<owner>. Keys expire on their own once the
// token is past expiry plus the retention window.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	opts   Options
}

// NewRedisStore creates a [RedisStore]. prefix namespaces every key.
func NewRedisStore(client redis.UniversalClient, prefix string, opts Options) *RedisStore {
	return &RedisStore{redis: client, prefix: prefix, opts: opts.withDefaults()}
}

func (s *RedisStore) tokenKeyPrefix() string {
	return s.prefix + "rt:"
}

func (s *RedisStore) tokenKey(digest string) string {
	return s.tokenKeyPrefix() + digest
}

func (s *RedisStore) ownerKey(ownerID string) string {
	return s.prefix + "rto:" + ownerID
}

func (s *RedisStore) Create(ctx context.Context, ownerID string) (*Token, error) {
	if ownerID == "" {
		return nil, errors.New("refresh: owner id required")
	}
	rt, err := newToken(ownerID, s.opts)
	if err != nil {
		return nil, err
	}

	digest := HashValue(rt.Value)
	key := s.tokenKey(digest)
	ownerKey := s.ownerKey(ownerID)
	purgeAt := rt.ExpiresAt.Add(s.opts.Retention)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"owner", rt.OwnerID,
			"exp", rt.ExpiresAt.UnixMilli(),
			"created", rt.CreatedAt.UnixMilli(),
			"revoked", "0",
		)
		pipe.PExpireAt(ctx, key, purgeAt)
		pipe.SAdd(ctx, ownerKey, digest)
		pipe.PExpireAt(ctx, ownerKey, purgeAt)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rt, nil
}

func (s *RedisStore) Find(ctx context.Context, value string) (*Token, error) {
	fields, err := s.redis.HGetAll(ctx, s.tokenKey(HashValue(value))).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rt := &Token{
		Value:     value,
		OwnerID:   fields["owner"],
		IsRevoked: fields["revoked"] == "1",
	}
	if rt.ExpiresAt, err = parseMillis(fields["exp"]); err != nil {
		return nil, fmt.Errorf("%w: corrupt exp field", ErrStoreUnavailable)
	}
	if rt.CreatedAt, err = parseMillis(fields["created"]); err != nil {
		return nil, fmt.Errorf("%w: corrupt created field", ErrStoreUnavailable)
	}
	if raw, ok := fields["revoked_at"]; ok {
		if t, err := parseMillis(raw); err == nil {
			rt.RevokedAt = &t
		}
	}
	return rt, nil
}

func (s *RedisStore) Revoke(ctx context.Context, value string) (bool, error) {
	n, err := revokeTokenLua.Run(
		ctx,
		s.redis,
		[]string{s.tokenKey(HashValue(value))},
		s.opts.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func (s *RedisStore) RevokeAllForOwner(ctx context.Context, ownerID string) (int64, error) {
	n, err := revokeOwnerLua.Run(
		ctx,
		s.redis,
		[]string{s.ownerKey(ownerID)},
		s.tokenKeyPrefix(),
		s.opts.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// DeleteExpired is a no-op: Redis drops records through key expiry.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

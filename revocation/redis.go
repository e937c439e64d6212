package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each entry under <prefix>bl:<fingerprint> with a key expiry at the
// token's own expiry, so Redis performs the sweep itself.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a [RedisStore]. now may be nil.
func NewRedisStore(client redis.UniversalClient, prefix string, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{redis: client, prefix: prefix, now: now}
}

func (s *RedisStore) key(fingerprint string) string {
	return s.prefix + "bl:" + fingerprint
}

func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	err := s.redis.SetNX(ctx, s.key(entry.Fingerprint), entry.ExpiresAt.UnixMilli(), ttl).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, fingerprint string) (time.Time, bool, error) {
	raw, err := s.redis.Get(ctx, s.key(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// The key exists, so the token is blacklisted even if the payload is unreadable.
		return s.now(), true, nil
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// DeleteExpired is a no-op: entries carry their own key expiry.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

package revocation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/tokengate/jwt"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	lookups int
	fail    error
	block   bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]Entry)}
}

func (s *memoryStore) Put(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if _, ok := s.entries[e.Fingerprint]; !ok {
		s.entries[e.Fingerprint] = e
	}
	return nil
}

func (s *memoryStore) Lookup(ctx context.Context, fp string) (time.Time, bool, error) {
	s.mu.Lock()
	block, fail := s.block, s.fail
	s.lookups++
	e, ok := s.entries[fp]
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return time.Time{}, false, ctx.Err()
	}
	if fail != nil {
		return time.Time{}, false, fail
	}
	return e.ExpiresAt, ok, nil
}

func (s *memoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.entries {
		if e.ExpiresAt.Before(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// stubDecode reads tokens shaped "tok-<id>-<unix expiry>".
func stubDecode(token string) (time.Time, error) {
	i := strings.LastIndexByte(token, '-')
	if i < 0 {
		return time.Time{}, errors.New("no expiry")
	}
	sec, err := strconv.ParseInt(token[i+1:], 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}

func stubToken(id string, exp time.Time) string {
	return "tok-" + id + "-" + strconv.FormatInt(exp.Unix(), 10)
}

func newTestRegistry(t *testing.T, store Store, cfg Config) *Registry {
	t.Helper()
	r, err := NewRegistry(store, NewFingerprinter([]byte("test")), stubDecode, cfg)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestRegistryAddThenIsRevoked(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(t, store, Config{})
	ctx := context.Background()

	token := stubToken("a", time.Now().Add(10*time.Minute))
	if err := r.Add(ctx, token); err != nil {
		t.Fatalf("Add: %v", err)
	}

	revoked, err := r.IsRevoked(ctx, token)
	if err != nil || !revoked {
		t.Fatalf("IsRevoked = %v, %v; want true", revoked, err)
	}
	if store.lookupCount() != 0 {
		t.Fatalf("expected cache hit without store lookup, got %d lookups", store.lookupCount())
	}

	other := stubToken("b", time.Now().Add(10*time.Minute))
	revoked, err = r.IsRevoked(ctx, other)
	if err != nil || revoked {
		t.Fatalf("IsRevoked(other) = %v, %v; want false", revoked, err)
	}
}

func TestRegistryReadThroughOnColdCache(t *testing.T) {
	store := newMemoryStore()
	writer := newTestRegistry(t, store, Config{})
	ctx := context.Background()

	token := stubToken("a", time.Now().Add(10*time.Minute))
	if err := writer.Add(ctx, token); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// A second process sharing the store starts with an empty cache.
	reader := newTestRegistry(t, store, Config{})
	revoked, err := reader.IsRevoked(ctx, token)
	if err != nil || !revoked {
		t.Fatalf("cold IsRevoked = %v, %v; want true", revoked, err)
	}
	if store.lookupCount() != 1 {
		t.Fatalf("expected one durable lookup, got %d", store.lookupCount())
	}

	revoked, err = reader.IsRevoked(ctx, token)
	if err != nil || !revoked {
		t.Fatalf("warm IsRevoked = %v, %v; want true", revoked, err)
	}
	if store.lookupCount() != 1 {
		t.Fatalf("expected repopulated cache to absorb the second check, got %d lookups", store.lookupCount())
	}

	stats := reader.Stats()
	if stats.StoreHits != 1 || stats.CacheHits != 1 || stats.CacheMisses != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRegistryFailsClosedOnStoreError(t *testing.T) {
	store := newMemoryStore()
	store.fail = errors.New("connection refused")
	r := newTestRegistry(t, store, Config{})

	_, err := r.IsRevoked(context.Background(), stubToken("a", time.Now().Add(time.Minute)))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := r.Add(context.Background(), stubToken("a", time.Now().Add(time.Minute))); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from Add, got %v", err)
	}
}

func TestRegistryStoreTimeout(t *testing.T) {
	store := newMemoryStore()
	store.block = true
	r := newTestRegistry(t, store, Config{StoreTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := r.IsRevoked(context.Background(), stubToken("a", time.Now().Add(time.Minute)))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected timeout to surface as ErrStoreUnavailable, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("store timeout was not enforced")
	}
}

func TestRegistryAddSkipsExpiredAndRejectsUndecodable(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(t, store, Config{})

	if err := r.Add(context.Background(), stubToken("old", time.Now().Add(-time.Minute))); err != nil {
		t.Fatalf("Add expired: %v", err)
	}
	if len(store.entries) != 0 {
		t.Fatalf("expected expired token not to be stored, got %d entries", len(store.entries))
	}

	if err := r.Add(context.Background(), "garbage"); !errors.Is(err, ErrUndecodable) {
		t.Fatalf("expected ErrUndecodable, got %v", err)
	}
}

func TestRegistrySweep(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	clock := now
	r := newTestRegistry(t, store, Config{Now: func() time.Time { return clock }})
	ctx := context.Background()

	short := stubToken("short", now.Add(time.Minute))
	long := stubToken("long", now.Add(time.Hour))
	if err := r.Add(ctx, short); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(ctx, long); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clock = now.Add(2 * time.Minute)
	n, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", len(store.entries))
	}
}

func TestRegistryWithoutCacheAlwaysConsultsStore(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(t, store, Config{DisableCache: true})
	ctx := context.Background()

	token := stubToken("a", time.Now().Add(time.Minute))
	if err := r.Add(ctx, token); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for i := 0; i < 3; i++ {
		if revoked, err := r.IsRevoked(ctx, token); err != nil || !revoked {
			t.Fatalf("IsRevoked = %v, %v", revoked, err)
		}
	}
	if store.lookupCount() != 3 {
		t.Fatalf("expected 3 lookups, got %d", store.lookupCount())
	}
}

func TestRegistryWithJWTDecoder(t *testing.T) {
	codec, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodHS256, Secret: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	token, err := codec.Issue(jwt.Claims{OwnerID: "u-1", Role: "user"}, jwt.DefaultAccessTTL)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	store := newMemoryStore()
	r, err := NewRegistry(store, NewFingerprinter(nil), codec.ExpiresAt, Config{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer r.Close()

	if err := r.Add(context.Background(), token); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for fp, e := range store.entries {
		if strings.Contains(fp, token) || fp == token {
			t.Fatal("raw token must not be stored")
		}
		if d := time.Until(e.ExpiresAt); d <= 0 || d > jwt.DefaultAccessTTL {
			t.Fatalf("unexpected stored expiry %v", e.ExpiresAt)
		}
	}
}

func TestRegistryAddCapsClaimedExpiry(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(t, store, Config{MaxTTL: 15 * time.Minute, Now: func() time.Time { return now }})
	ctx := context.Background()

	forged := stubToken("forged", now.AddDate(100, 0, 0))
	if err := r.Add(ctx, forged); err != nil {
		t.Fatalf("Add: %v", err)
	}
	genuine := stubToken("genuine", now.Add(5*time.Minute))
	if err := r.Add(ctx, genuine); err != nil {
		t.Fatalf("Add: %v", err)
	}

	want := map[string]time.Time{
		r.fp.Fingerprint(forged):  now.Add(15 * time.Minute),
		r.fp.Fingerprint(genuine): now.Add(5 * time.Minute),
	}
	if len(store.entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(store.entries))
	}
	for fp, exp := range want {
		e, ok := store.entries[fp]
		if !ok {
			t.Fatalf("missing entry %s", fp)
		}
		if !e.ExpiresAt.Equal(exp) {
			t.Fatalf("entry %s expires %v, want %v", fp, e.ExpiresAt, exp)
		}
	}
}

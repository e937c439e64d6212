package revocation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const defaultCacheEntries = 100_000

// ExpiryDecoder reads a token's expiry without verifying it.
type ExpiryDecoder func(token string) (time.Time, error)

// Config tunes a [Registry].
type Config struct {
	// CacheMaxEntries bounds the in-memory overlay. Zero selects a default.
	CacheMaxEntries int64
	// DisableCache forces every check to the durable store.
	DisableCache bool
	// StoreTimeout bounds each durable call. Zero leaves the caller's deadline alone.
	StoreTimeout time.Duration
	// MaxTTL caps how long an entry is kept, whatever expiry the token claims. Set it
	// to the longest lifetime an issued token can have (access TTL plus leeway). Zero
	// disables the cap.
	MaxTTL time.Duration
	Now    func() time.Time
}

// Stats reports cache effectiveness.
type Stats struct {
	CacheHits   uint64
	CacheMisses uint64
	StoreHits   uint64
}

// Registry is safe for concurrent use.
type Registry struct {
	store  Store
	fp     *Fingerprinter
	decode ExpiryDecoder
	cache  *ristretto.Cache[string, time.Time]
	cfg    Config

	hits      atomic.Uint64
	misses    atomic.Uint64
	storeHits atomic.Uint64
}

// NewRegistry wires a registry over store.
func NewRegistry(store Store, fp *Fingerprinter, decode ExpiryDecoder, cfg Config) (*Registry, error) {
	if store == nil {
		return nil, errors.New("revocation: store required")
	}
	if fp == nil {
		return nil, errors.New("revocation: fingerprinter required")
	}
	if decode == nil {
		return nil, errors.New("revocation: expiry decoder required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = defaultCacheEntries
	}

	r := &Registry{store: store, fp: fp, decode: decode, cfg: cfg}
	if !cfg.DisableCache {
		cache, err := ristretto.NewCache(&ristretto.Config[string, time.Time]{
			NumCounters:        cfg.CacheMaxEntries * 10,
			MaxCost:            cfg.CacheMaxEntries,
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("revocation cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Add blacklists token until its own expiry, capped at now+MaxTTL since the expiry is
// read from an unverified token. Tokens that have already expired are not recorded
// since the codec rejects them anyway.
func (r *Registry) Add(ctx context.Context, token string) error {
	expiresAt, err := r.decode(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	now := r.cfg.Now()
	if !expiresAt.After(now) {
		return nil
	}
	if r.cfg.MaxTTL > 0 {
		if limit := now.Add(r.cfg.MaxTTL); expiresAt.After(limit) {
			expiresAt = limit
		}
	}

	fingerprint := r.fp.Fingerprint(token)
	storeCtx, cancel := r.storeContext(ctx)
	defer cancel()

	err = r.store.Put(storeCtx, Entry{
		Fingerprint: fingerprint,
		ExpiresAt:   expiresAt.UTC(),
		RevokedAt:   now.UTC(),
	})
	if err != nil {
		return unavailable(err)
	}

	r.remember(fingerprint, expiresAt, now)
	return nil
}

// IsRevoked checks the cache first and falls back to the store on a miss. A durable
// hit repopulates the cache. Store failures are returned, never treated as "not revoked".
func (r *Registry) IsRevoked(ctx context.Context, token string) (bool, error) {
	fingerprint := r.fp.Fingerprint(token)

	if r.cache != nil {
		if _, ok := r.cache.Get(fingerprint); ok {
			r.hits.Add(1)
			return true, nil
		}
		r.misses.Add(1)
	}

	storeCtx, cancel := r.storeContext(ctx)
	defer cancel()

	expiresAt, found, err := r.store.Lookup(storeCtx, fingerprint)
	if err != nil {
		return false, unavailable(err)
	}
	if !found {
		return false, nil
	}

	r.storeHits.Add(1)
	r.remember(fingerprint, expiresAt, r.cfg.Now())
	return true, nil
}

// Sweep deletes durable entries whose expiry has passed.
func (r *Registry) Sweep(ctx context.Context) (int64, error) {
	storeCtx, cancel := r.storeContext(ctx)
	defer cancel()

	n, err := r.store.DeleteExpired(storeCtx, r.cfg.Now().UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Stats returns cumulative cache counters.
func (r *Registry) Stats() Stats {
	return Stats{
		CacheHits:   r.hits.Load(),
		CacheMisses: r.misses.Load(),
		StoreHits:   r.storeHits.Load(),
	}
}

// Close releases the cache goroutines.
func (r *Registry) Close() {
	if r != nil && r.cache != nil {
		r.cache.Close()
	}
}

func (r *Registry) remember(fingerprint string, expiresAt, now time.Time) {
	if r.cache == nil {
		return
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return
	}
	if r.cache.SetWithTTL(fingerprint, expiresAt, 1, ttl) {
		r.cache.Wait()
	}
}

func (r *Registry) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.StoreTimeout)
}

func unavailable(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

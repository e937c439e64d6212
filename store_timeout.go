package tokengate

import (
	"context"
	"time"

	"github.com/MrEthical07/tokengate/refresh"
)

// boundedRefreshStore applies the configured store timeout to every ledger call so a
// stalled backend surfaces as ErrStoreUnavailable instead of a hung request.
type boundedRefreshStore struct {
	next    refresh.Store
	timeout time.Duration
}

func newBoundedRefreshStore(next refresh.Store, timeout time.Duration) refresh.Store {
	if timeout <= 0 {
		return next
	}
	return &boundedRefreshStore{next: next, timeout: timeout}
}

func (s *boundedRefreshStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.timeout)
}

func (s *boundedRefreshStore) Create(ctx context.Context, ownerID string) (*refresh.Token, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return s.next.Create(ctx, ownerID)
}

func (s *boundedRefreshStore) Find(ctx context.Context, value string) (*refresh.Token, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return s.next.Find(ctx, value)
}

func (s *boundedRefreshStore) Revoke(ctx context.Context, value string) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return s.next.Revoke(ctx, value)
}

func (s *boundedRefreshStore) RevokeAllForOwner(ctx context.Context, ownerID string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return s.next.RevokeAllForOwner(ctx, ownerID)
}

func (s *boundedRefreshStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return s.next.DeleteExpired(ctx, cutoff)
}

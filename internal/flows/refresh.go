package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokengate/refresh"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureRaceLost
	RefreshFailureStore
	RefreshFailureOwnerMissing
	RefreshFailureOwnerInactive
	RefreshFailureDirectory
	RefreshFailureIssueAccess
	RefreshFailureCreate
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	OwnerID string
	Owner   Owner
	Access  IssuedAccess
	Refresh *refresh.Token
}

// RefreshStore is the subset of [refresh.Store] the rotation needs.
type RefreshStore interface {
	Find(ctx context.Context, value string) (*refresh.Token, error)
	Revoke(ctx context.Context, value string) (bool, error)
	Create(ctx context.Context, ownerID string) (*refresh.Token, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Store       RefreshStore
	Now         func() time.Time
	LoadOwner   func(ctx context.Context, ownerID string) (Owner, error)
	IssueAccess func(Owner) (IssuedAccess, error)
	// OwnerMissing is the sentinel LoadOwner returns for a deleted owner.
	OwnerMissing error
	Warn         func(msg string, args ...any)
}

// RunRefresh performs single-use rotation: validate the presented value, re-read the
// owner, sign the new access token, conditionally revoke, and only when this call won
// the revoke create a successor. A signing failure leaves the presented token usable.
// A crash between revoke and create leaves the owner logged out, never with two live
// tokens.
func RunRefresh(ctx context.Context, value string, deps RefreshDeps) RefreshResult {
	if value == "" {
		return RefreshResult{Failure: RefreshFailureInvalid}
	}

	rt, err := deps.Store.Find(ctx, value)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureInvalid}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err}
	}
	if !refresh.Valid(rt, deps.Now()) {
		return RefreshResult{Failure: RefreshFailureInvalid, OwnerID: rt.OwnerID}
	}

	owner, err := deps.LoadOwner(ctx, rt.OwnerID)
	switch {
	case err != nil && deps.OwnerMissing != nil && errors.Is(err, deps.OwnerMissing):
		consume(ctx, value, rt.OwnerID, deps)
		return RefreshResult{Failure: RefreshFailureOwnerMissing, Err: err, OwnerID: rt.OwnerID}
	case err != nil:
		return RefreshResult{Failure: RefreshFailureDirectory, Err: err, OwnerID: rt.OwnerID}
	case !owner.Active:
		consume(ctx, value, rt.OwnerID, deps)
		return RefreshResult{Failure: RefreshFailureOwnerInactive, OwnerID: rt.OwnerID, Owner: owner}
	}

	access, err := deps.IssueAccess(owner)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, OwnerID: rt.OwnerID, Owner: owner}
	}

	won, err := deps.Store.Revoke(ctx, value)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, OwnerID: rt.OwnerID}
	}
	if !won {
		return RefreshResult{Failure: RefreshFailureRaceLost, OwnerID: rt.OwnerID}
	}

	next, err := deps.Store.Create(ctx, owner.ID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureCreate, Err: err, OwnerID: rt.OwnerID, Owner: owner}
	}

	return RefreshResult{
		Failure: RefreshFailureNone,
		OwnerID: owner.ID,
		Owner:   owner,
		Access:  access,
		Refresh: next,
	}
}

func consume(ctx context.Context, value, ownerID string, deps RefreshDeps) {
	if _, err := deps.Store.Revoke(ctx, value); err != nil {
		warn(deps.Warn, "refresh token consume failed", "owner_id", ownerID, "err", err)
	}
}

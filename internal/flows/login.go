package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokengate/refresh"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureRejected
	LoginFailureInactive
	LoginFailureDirectory
	LoginFailureIssueAccess
	LoginFailureCreateRefresh
)

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	Owner   Owner
	Access  IssuedAccess
	Refresh *refresh.Token
}

// LoginDeps captures login dependencies. Throttle hooks are optional; when CheckRate
// is nil the flow does not throttle.
type LoginDeps struct {
	CheckRate     func(ctx context.Context, identifier, ip string) error
	RecordFailure func(ctx context.Context, identifier, ip string) error
	ResetRate     func(ctx context.Context, identifier string) error
	RecordLogin   func(ctx context.Context, ownerID string) error

	IssueAccess   func(Owner) (IssuedAccess, error)
	CreateRefresh func(ctx context.Context, ownerID string) (*refresh.Token, error)

	// Rejected is the sentinel a credential verifier returns for bad credentials.
	Rejected error
	Warn     func(msg string, args ...any)
}

// LoginInput names the caller being authenticated. Identifier and IP only feed the
// throttle; Authenticate performs the actual credential or identity check.
type LoginInput struct {
	Identifier   string
	IP           string
	Authenticate func(ctx context.Context) (Owner, error)
}

// RunLogin authenticates the caller and issues one access token and one refresh
// token. Prior refresh tokens of the owner are left untouched.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) LoginResult {
	throttled := deps.CheckRate != nil && in.Identifier != ""
	if throttled {
		if err := deps.CheckRate(ctx, in.Identifier, in.IP); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	owner, err := in.Authenticate(ctx)
	if err != nil {
		if deps.Rejected != nil && errors.Is(err, deps.Rejected) {
			if throttled && deps.RecordFailure != nil {
				if rateErr := deps.RecordFailure(ctx, in.Identifier, in.IP); rateErr != nil {
					return LoginResult{Failure: LoginFailureRateLimited, Err: rateErr}
				}
			}
			return LoginResult{Failure: LoginFailureRejected, Err: err}
		}
		return LoginResult{Failure: LoginFailureDirectory, Err: err}
	}
	if !owner.Active {
		return LoginResult{Failure: LoginFailureInactive, Owner: owner}
	}

	access, err := deps.IssueAccess(owner)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueAccess, Err: err, Owner: owner}
	}

	rt, err := deps.CreateRefresh(ctx, owner.ID)
	if err != nil {
		return LoginResult{Failure: LoginFailureCreateRefresh, Err: err, Owner: owner}
	}

	if throttled && deps.ResetRate != nil {
		if err := deps.ResetRate(ctx, in.Identifier); err != nil {
			warn(deps.Warn, "login throttle reset failed", "owner_id", owner.ID, "err", err)
		}
	}
	if deps.RecordLogin != nil {
		if err := deps.RecordLogin(ctx, owner.ID); err != nil {
			warn(deps.Warn, "last login update failed", "owner_id", owner.ID, "err", err)
		}
	}

	return LoginResult{
		Failure: LoginFailureNone,
		Owner:   owner,
		Access:  access,
		Refresh: rt,
	}
}

func warn(fn func(string, ...any), msg string, args ...any) {
	if fn != nil {
		fn(msg, args...)
	}
}

package flows

import "context"

// LogoutDeps captures logout dependencies. Every hook is required.
type LogoutDeps struct {
	RevokeRefresh     func(ctx context.Context, value string) (bool, error)
	RevokeAllForOwner func(ctx context.Context, ownerID string) (int64, error)
	Blacklist         func(ctx context.Context, accessToken string) error
	Warn              func(msg string, args ...any)
}

// LogoutInput names the material to revoke. Empty fields are skipped.
type LogoutInput struct {
	AccessToken  string
	RefreshToken string
	OwnerID      string
}

// LogoutResult reports each independent step. Errors are collected, never returned.
type LogoutResult struct {
	RefreshRevoked    bool
	OwnerTokens       int64
	AccessBlacklisted bool
	Errors            []error
}

// RunLogout runs the three revocations independently; one failing never stops the
// others. Failures are logged through Warn and collected for metrics.
func RunLogout(ctx context.Context, in LogoutInput, deps LogoutDeps) LogoutResult {
	var res LogoutResult

	if in.RefreshToken != "" {
		revoked, err := deps.RevokeRefresh(ctx, in.RefreshToken)
		if err != nil {
			warn(deps.Warn, "logout: refresh revoke failed", "err", err)
			res.Errors = append(res.Errors, err)
		}
		res.RefreshRevoked = revoked
	}

	if in.OwnerID != "" {
		n, err := deps.RevokeAllForOwner(ctx, in.OwnerID)
		if err != nil {
			warn(deps.Warn, "logout: revoke all failed", "owner_id", in.OwnerID, "err", err)
			res.Errors = append(res.Errors, err)
		}
		res.OwnerTokens = n
	}

	if in.AccessToken != "" {
		if err := deps.Blacklist(ctx, in.AccessToken); err != nil {
			warn(deps.Warn, "logout: access blacklist failed", "err", err)
			res.Errors = append(res.Errors, err)
		} else {
			res.AccessBlacklisted = true
		}
	}

	return res
}

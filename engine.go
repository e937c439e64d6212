package tokengate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/tokengate/authz"
	internalaudit "github.com/MrEthical07/tokengate/internal/audit"
	internalflows "github.com/MrEthical07/tokengate/internal/flows"
	"github.com/MrEthical07/tokengate/internal/rate"
	"github.com/MrEthical07/tokengate/jwt"
	"github.com/MrEthical07/tokengate/refresh"
	"github.com/MrEthical07/tokengate/revocation"
)

const minPasswordLength = 8

// Engine is the token lifecycle service and the gate decision function. Build it with
// [Builder]; its methods are safe for concurrent use.
type Engine struct {
	config      Config
	now         func() time.Time
	logger      *slog.Logger
	jwtManager  *jwt.Manager
	refresh     refresh.Store
	revocations *revocation.Registry
	policy      *authz.Map
	users       UserProvider
	limiter     *rate.Limiter
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	flows       internalflows.Deps

	sweepMu   sync.Mutex
	sweepStop context.CancelFunc
	sweepDone chan struct{}
	closeOnce sync.Once
}

// Close stops the sweeper, drains the audit dispatcher and releases the revocation cache.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.StopSweeper()
		if e.audit != nil {
			e.audit.Close()
		}
		e.revocations.Close()
	})
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// RevocationStats reports the revocation cache counters.
func (e *Engine) RevocationStats() revocation.Stats {
	if e == nil || e.revocations == nil {
		return revocation.Stats{}
	}
	return e.revocations.Stats()
}

// Policy returns the loaded route table.
func (e *Engine) Policy() *authz.Map {
	if e == nil {
		return nil
	}
	return e.policy
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

/*
====================================
LOGIN / REGISTER
====================================
*/

// Login verifies email and password with the UserProvider and issues a new session.
// Existing sessions of the owner stay valid.
func (e *Engine) Login(ctx context.Context, email, password string) (*Session, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}

	res := internalflows.RunLogin(ctx, internalflows.LoginInput{
		Identifier: strings.ToLower(email),
		IP:         clientIPFromContext(ctx),
		Authenticate: func(ctx context.Context) (internalflows.Owner, error) {
			ctx, cancel := e.bound(ctx)
			defer cancel()
			u, err := e.users.VerifyCredentials(ctx, email, password)
			return ownerFromUser(u), err
		},
	}, e.flows.Login)

	return e.finishLogin(ctx, "login", email, res)
}

// Register creates an owner through the provider's [UserRegistrar] and issues a
// session exactly like Login.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	registrar, ok := e.users.(UserRegistrar)
	if !ok {
		return nil, fmt.Errorf("%w: registration", ErrFeatureUnavailable)
	}
	if err := validateRegistration(&req); err != nil {
		return nil, err
	}

	res := internalflows.RunLogin(ctx, internalflows.LoginInput{
		Authenticate: func(ctx context.Context) (internalflows.Owner, error) {
			ctx, cancel := e.bound(ctx)
			defer cancel()
			u, err := registrar.CreateUser(ctx, NewUser{
				Email:    req.Email,
				Username: req.Username,
				FullName: req.FullName,
				Password: req.Password,
				Role:     e.config.Authorization.DefaultRole,
			})
			return ownerFromUser(u), err
		},
	}, e.flows.Login)

	return e.finishLogin(ctx, "register", req.Email, res)
}

// LoginWithIdentity issues a session for an identity verified by a third-party
// provider. The owner is created on first sight by the [ExternalIdentityResolver].
func (e *Engine) LoginWithIdentity(ctx context.Context, provider string, identity ExternalIdentity) (*Session, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	resolver, ok := e.users.(ExternalIdentityResolver)
	if !ok {
		return nil, fmt.Errorf("%w: external identity", ErrFeatureUnavailable)
	}
	if strings.TrimSpace(identity.SubjectID) == "" || strings.TrimSpace(identity.Email) == "" {
		return nil, fmt.Errorf("%w: subject and email are required", ErrInvalidRequest)
	}

	res := internalflows.RunLogin(ctx, internalflows.LoginInput{
		Authenticate: func(ctx context.Context) (internalflows.Owner, error) {
			ctx, cancel := e.bound(ctx)
			defer cancel()
			u, err := resolver.ResolveExternal(ctx, provider, identity, e.config.Authorization.DefaultRole)
			return ownerFromUser(u), err
		},
	}, e.flows.Login)

	return e.finishLogin(ctx, "oauth:"+provider, identity.Email, res)
}

func (e *Engine) finishLogin(ctx context.Context, method, identifier string, res internalflows.LoginResult) (*Session, error) {
	register := method == "register"
	meta := func(reason string) func() map[string]string {
		return func() map[string]string {
			m := map[string]string{"method": method, "identifier": identifier}
			if reason != "" {
				m["reason"] = reason
			}
			return m
		}
	}

	var err error
	switch res.Failure {
	case internalflows.LoginFailureNone:
		if register {
			e.metricInc(MetricRegisterSuccess)
			e.emitAudit(ctx, auditEventRegisterSuccess, true, res.Owner.ID, "", nil, meta(""))
		} else {
			e.metricInc(MetricLoginSuccess)
			e.emitAudit(ctx, auditEventLoginSuccess, true, res.Owner.ID, "", nil, meta(""))
		}
		return &Session{
			AccessToken:      res.Access.Token,
			AccessExpiresAt:  res.Access.ExpiresAt,
			RefreshToken:     res.Refresh.Value,
			RefreshExpiresAt: res.Refresh.ExpiresAt,
			User:             userFromOwner(res.Owner),
		}, nil
	case internalflows.LoginFailureRateLimited:
		if errors.Is(res.Err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, meta(""))
			return nil, ErrLoginRateLimited
		}
		err = storeError(res.Err)
	case internalflows.LoginFailureRejected:
		err = ErrInvalidCredentials
	case internalflows.LoginFailureInactive:
		err = ErrAccountInactive
	case internalflows.LoginFailureDirectory:
		switch {
		case errors.Is(res.Err, ErrAccountExists):
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", res.Err, meta(""))
			return nil, res.Err
		case errors.Is(res.Err, ErrInvalidRequest), errors.Is(res.Err, ErrInvalidCredentials):
			err = res.Err
		default:
			err = storeError(res.Err)
		}
	case internalflows.LoginFailureIssueAccess:
		err = fmt.Errorf("issue access token: %w", res.Err)
	case internalflows.LoginFailureCreateRefresh:
		err = storeError(res.Err)
	default:
		err = ErrEngineNotReady
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, res.Owner.ID, "", err, meta(ErrorCode(err)))
	return nil, err
}

func validateRegistration(req *RegisterRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.FullName = strings.TrimSpace(req.FullName)

	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return fmt.Errorf("%w: email is not a valid address", ErrInvalidRequest)
	}
	if len(req.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRequest, minPasswordLength)
	}
	if req.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	return nil
}

/*
====================================
REFRESH
====================================
*/

// Refresh rotates a refresh token. The presented value is consumed by a conditional
// revoke; only the caller that wins it receives a successor. Every other outcome of
// an unusable value is ErrRefreshInvalidOrExpired.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if e == nil || e.refresh == nil {
		return nil, ErrEngineNotReady
	}

	res := internalflows.RunRefresh(ctx, strings.TrimSpace(refreshToken), e.flows.Refresh)

	var err error
	reason := ""
	switch res.Failure {
	case internalflows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.OwnerID, "", nil, nil)
		return &Session{
			AccessToken:      res.Access.Token,
			AccessExpiresAt:  res.Access.ExpiresAt,
			RefreshToken:     res.Refresh.Value,
			RefreshExpiresAt: res.Refresh.ExpiresAt,
			User:             userFromOwner(res.Owner),
		}, nil
	case internalflows.RefreshFailureInvalid:
		err, reason = ErrRefreshInvalidOrExpired, "invalid"
	case internalflows.RefreshFailureRaceLost:
		e.metricInc(MetricRefreshRaceLost)
		e.logger.Warn("refresh rotation race lost", "op", "refresh", "owner_id", res.OwnerID)
		err, reason = ErrRefreshInvalidOrExpired, "rotation_race"
	case internalflows.RefreshFailureOwnerMissing:
		err, reason = ErrUserNotFound, "owner_missing"
	case internalflows.RefreshFailureOwnerInactive:
		err, reason = ErrAccountInactive, "owner_inactive"
	case internalflows.RefreshFailureStore, internalflows.RefreshFailureDirectory, internalflows.RefreshFailureCreate:
		err, reason = storeError(res.Err), "store"
	case internalflows.RefreshFailureIssueAccess:
		err, reason = fmt.Errorf("issue access token: %w", res.Err), "issue_access"
	default:
		err = ErrEngineNotReady
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshFailure, false, res.OwnerID, "", err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return nil, err
}

/*
====================================
LOGOUT / REVOKE
====================================
*/

// Logout revokes whatever session material req names. The three revocations are
// independent and best effort: failures are logged and counted but never returned.
// With AllDevices set, every refresh token of the owner named by a verifying access
// token is revoked too.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) LogoutResult {
	if e == nil || e.refresh == nil {
		return LogoutResult{}
	}

	access := strings.TrimSpace(req.AccessToken)
	ownerID := strings.TrimSpace(req.OwnerID)
	if req.AllDevices && ownerID == "" && access != "" {
		if claims, err := e.jwtManager.Verify(access); err == nil {
			ownerID = claims.OwnerID
		}
	}

	res := internalflows.RunLogout(ctx, internalflows.LogoutInput{
		AccessToken:  access,
		RefreshToken: strings.TrimSpace(req.RefreshToken),
		OwnerID:      ownerID,
	}, e.flows.Logout)

	e.metricInc(MetricLogout)
	if ownerID != "" {
		e.metricInc(MetricLogoutAll)
	}
	if res.AccessBlacklisted {
		e.metricInc(MetricTokenBlacklisted)
	}
	if len(res.Errors) > 0 {
		e.metricInc(MetricLogoutPartialFailure)
	}
	e.emitAudit(ctx, auditEventLogout, len(res.Errors) == 0, ownerID, "", errors.Join(res.Errors...), func() map[string]string {
		return map[string]string{
			"refresh_revoked":    fmt.Sprint(res.RefreshRevoked),
			"owner_tokens":       fmt.Sprint(res.OwnerTokens),
			"access_blacklisted": fmt.Sprint(res.AccessBlacklisted),
		}
	})

	return LogoutResult{
		RefreshRevoked:    res.RefreshRevoked,
		OwnerTokens:       res.OwnerTokens,
		AccessBlacklisted: res.AccessBlacklisted,
		Failures:          len(res.Errors),
	}
}

// RevokeAllForOwner revokes every outstanding refresh token of ownerID and returns how
// many were active. Tokens of other owners are untouched.
func (e *Engine) RevokeAllForOwner(ctx context.Context, ownerID string) (int64, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return 0, fmt.Errorf("%w: owner id is required", ErrInvalidRequest)
	}

	n, err := e.refresh.RevokeAllForOwner(ctx, ownerID)
	if err != nil {
		err = storeError(err)
		e.emitAudit(ctx, auditEventRevokeAll, false, ownerID, "", err, nil)
		return 0, err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventRevokeAll, true, ownerID, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return n, nil
}

// User returns the directory view of userID.
func (e *Engine) User(ctx context.Context, userID string) (User, error) {
	if e == nil || e.users == nil {
		return User{}, ErrEngineNotReady
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()

	u, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
		return User{}, storeError(err)
	}
	return u, nil
}

/*
====================================
HELPERS
====================================
*/

func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Store.Timeout)
}

func (e *Engine) issueAccess(o internalflows.Owner) (internalflows.IssuedAccess, error) {
	token, err := e.jwtManager.Issue(jwt.Claims{
		OwnerID:  o.ID,
		Email:    o.Email,
		Username: o.Username,
		Role:     o.Role,
	}, e.config.JWT.AccessTTL)
	if err != nil {
		return internalflows.IssuedAccess{}, err
	}
	exp, err := e.jwtManager.ExpiresAt(token)
	if err != nil {
		return internalflows.IssuedAccess{}, err
	}
	return internalflows.IssuedAccess{Token: token, ExpiresAt: exp}, nil
}

func (e *Engine) loadOwner(ctx context.Context, ownerID string) (internalflows.Owner, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	u, err := e.users.GetUserByID(ctx, ownerID)
	return ownerFromUser(u), err
}

func storeError(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func ownerFromUser(u User) internalflows.Owner {
	return internalflows.Owner{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		FullName: u.FullName,
		Role:     u.Role,
		Active:   u.Active,
	}
}

func userFromOwner(o internalflows.Owner) User {
	return User{
		ID:       o.ID,
		Email:    o.Email,
		Username: o.Username,
		FullName: o.FullName,
		Role:     o.Role,
		Active:   o.Active,
	}
}

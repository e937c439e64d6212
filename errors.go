package tokengate

import "errors"

var (
	// ErrNoTokenProvided reports a gated request without a usable bearer credential.
	ErrNoTokenProvided = errors.New("no token provided")
	// ErrInvalidToken reports a malformed token or one whose signature does not verify.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired reports a correctly signed access token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked reports an access token found in the revocation registry.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrInsufficientRole reports an authenticated caller whose role the route does not admit.
	ErrInsufficientRole = errors.New("insufficient role")
	// ErrRefreshInvalidOrExpired covers unknown, revoked, expired and already rotated refresh tokens.
	ErrRefreshInvalidOrExpired = errors.New("refresh token invalid or expired")
	// ErrStoreUnavailable wraps failures and timeouts of the durable stores.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidCredentials is returned by a UserProvider when the identifier or secret is rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive reports a deactivated owner.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountExists reports a registration clashing with an existing email or username.
	ErrAccountExists = errors.New("account already exists")
	// ErrUserNotFound reports an owner that no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoginRateLimited reports an identifier or address over its failed-login budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrInvalidRequest reports missing or malformed input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrFeatureUnavailable reports an operation whose collaborator was not wired.
	ErrFeatureUnavailable = errors.New("feature unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorCode maps err onto the stable wire code used in error responses and audit events.
// Unknown errors map to "InternalError".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoTokenProvided):
		return "NoTokenProvided"
	case errors.Is(err, ErrTokenRevoked):
		return "TokenRevoked"
	case errors.Is(err, ErrTokenExpired):
		return "TokenExpired"
	case errors.Is(err, ErrInvalidToken):
		return "InvalidToken"
	case errors.Is(err, ErrInsufficientRole):
		return "InsufficientRole"
	case errors.Is(err, ErrRefreshInvalidOrExpired):
		return "RefreshInvalidOrExpired"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	case errors.Is(err, ErrInvalidCredentials):
		return "InvalidCredentials"
	case errors.Is(err, ErrAccountInactive):
		return "AccountInactive"
	case errors.Is(err, ErrAccountExists):
		return "AccountExists"
	case errors.Is(err, ErrUserNotFound):
		return "UserNotFound"
	case errors.Is(err, ErrLoginRateLimited):
		return "LoginRateLimited"
	case errors.Is(err, ErrInvalidRequest):
		return "InvalidRequest"
	case errors.Is(err, ErrFeatureUnavailable):
		return "FeatureUnavailable"
	default:
		return "InternalError"
	}
}

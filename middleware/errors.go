package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/tokengate"
)

// ErrorBody is the JSON shape of every rejection.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps an engine error onto an HTTP status. Store failures on lifecycle
// endpoints are 500.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tokengate.ErrNoTokenProvided),
		errors.Is(err, tokengate.ErrTokenRevoked),
		errors.Is(err, tokengate.ErrTokenExpired),
		errors.Is(err, tokengate.ErrInvalidToken),
		errors.Is(err, tokengate.ErrInvalidCredentials),
		errors.Is(err, tokengate.ErrRefreshInvalidOrExpired):
		return http.StatusUnauthorized
	case errors.Is(err, tokengate.ErrInsufficientRole),
		errors.Is(err, tokengate.ErrAccountInactive):
		return http.StatusForbidden
	case errors.Is(err, tokengate.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, tokengate.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, tokengate.ErrLoginRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, tokengate.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, tokengate.ErrFeatureUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Body builds the rejection body for err. Internal failures get a generic message.
func Body(err error) ErrorBody {
	code := tokengate.ErrorCode(err)
	msg := messages[code]
	if msg == "" {
		msg = "Internal error"
	}
	return ErrorBody{Error: code, Message: msg}
}

// WriteError writes the JSON rejection for err with the given status.
func WriteError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body(err))
}

var messages = map[string]string{
	"NoTokenProvided":         "Unauthorized - No token provided",
	"TokenRevoked":            "Unauthorized - Token has been revoked",
	"TokenExpired":            "Unauthorized - Token expired",
	"InvalidToken":            "Unauthorized - Invalid token",
	"InsufficientRole":        "Forbidden - Insufficient privileges",
	"RefreshInvalidOrExpired": "Refresh token invalid or expired",
	"StoreUnavailable":        "Service temporarily unavailable",
	"InvalidCredentials":      "Invalid email or password",
	"AccountInactive":         "Account is inactive",
	"AccountExists":           "Email or username already registered",
	"UserNotFound":            "User not found",
	"LoginRateLimited":        "Too many login attempts",
	"InvalidRequest":          "Invalid request",
	"FeatureUnavailable":      "Not supported",
}

package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/tokengate"
)

// Authorizer is the gate decision the middleware delegates to. *tokengate.Engine
// implements it.
type Authorizer interface {
	Authorize(ctx context.Context, path, authorization string) (*tokengate.Identity, error)
}

// Gate returns middleware that runs every request through the session gate.
//
// Public routes pass through untouched. Authorized requests continue with the
// identity attached to the request context (see [tokengate.IdentityFromContext]).
// Everything else is answered with a JSON error body and never reaches next. Paths
// that are not in clean form are refused with 400 rather than resolved.
func Gate(authz Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authz == nil {
				WriteError(w, http.StatusUnauthorized, tokengate.ErrEngineNotReady)
				return
			}

			id, err := authz.Authorize(r.Context(), routePath(r), r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, gateStatus(err), err)
				return
			}
			if id == nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(tokengate.WithIdentity(r.Context(), id)))
		})
	}
}

// routePath is the path routers dispatch on: the raw form when the request carried
// escapes that decoding would change, such as %2F.
func routePath(r *http.Request) string {
	if r.URL.RawPath != "" {
		return r.URL.RawPath
	}
	return r.URL.Path
}

// A gate that cannot confirm a token is unrevoked answers 401, not 500.
func gateStatus(err error) int {
	if errors.Is(err, tokengate.ErrStoreUnavailable) || errors.Is(err, tokengate.ErrEngineNotReady) {
		return http.StatusUnauthorized
	}
	return StatusFor(err)
}

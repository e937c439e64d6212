package flows

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/MrEthical07/tokengate/jwt"
)

// GateState is the furthest state a request reached in the gate.
type GateState int

const (
	GateUnauthenticated GateState = iota
	GateTokenExtracted
	GateRevocationChecked
	GateSignatureVerified
	GateRoleChecked
	GateAuthorized
)

func (s GateState) String() string {
	switch s {
	case GateUnauthenticated:
		return "unauthenticated"
	case GateTokenExtracted:
		return "token_extracted"
	case GateRevocationChecked:
		return "revocation_checked"
	case GateSignatureVerified:
		return "signature_verified"
	case GateRoleChecked:
		return "role_checked"
	case GateAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// GateFailureKind classifies why the gate stopped.
type GateFailureKind int

const (
	GateFailureNone GateFailureKind = iota
	GateFailureNoToken
	GateFailureRevoked
	GateFailureStore
	GateFailureExpired
	GateFailureInvalid
	GateFailureRole
	GateFailurePath
)

// AuthorizeDeps are read-only collaborators. The gate never writes to a store.
type AuthorizeDeps struct {
	RequiresAuth  func(path string) bool
	RequiredRoles func(path string) []string
	Satisfies     func(role string, required []string) bool
	IsRevoked     func(ctx context.Context, token string) (bool, error)
	Verify        func(token string) (*jwt.Claims, error)
}

// AuthorizeResult is the gate decision. Public is set for routes that bypassed the
// checks; Claims is set once the signature has verified.
type AuthorizeResult struct {
	State    GateState
	Failure  GateFailureKind
	Err      error
	Public   bool
	Claims   *jwt.Claims
	Required []string
}

// CanonicalPath reports whether p is absolute and already in path.Clean form. The
// root "/" is canonical; "/a/", "/a//b" and "/a/../b" are not.
func CanonicalPath(p string) bool {
	return strings.HasPrefix(p, "/") && path.Clean(p) == p
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>" header value.
// The scheme is matched case-insensitively; anything else yields ok=false.
func ExtractBearer(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// RunAuthorize walks the gate state machine for one request and short-circuits on the
// first failure. Revocation is checked before the signature so a blacklisted token is
// reported as revoked even after it expires. A revocation lookup that fails is a
// denial.
//
// The path must be the one the router dispatches on. Paths with dot segments, empty
// segments or a trailing slash are refused before the route table is consulted, since
// a router may resolve them differently from the table.
func RunAuthorize(ctx context.Context, path, authorization string, deps AuthorizeDeps) AuthorizeResult {
	if !CanonicalPath(path) {
		return AuthorizeResult{State: GateUnauthenticated, Failure: GateFailurePath}
	}
	if !deps.RequiresAuth(path) {
		return AuthorizeResult{State: GateAuthorized, Public: true}
	}

	token, ok := ExtractBearer(authorization)
	if !ok {
		return AuthorizeResult{State: GateUnauthenticated, Failure: GateFailureNoToken}
	}

	revoked, err := deps.IsRevoked(ctx, token)
	if err != nil {
		return AuthorizeResult{State: GateTokenExtracted, Failure: GateFailureStore, Err: err}
	}
	if revoked {
		return AuthorizeResult{State: GateTokenExtracted, Failure: GateFailureRevoked}
	}

	claims, err := deps.Verify(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return AuthorizeResult{State: GateRevocationChecked, Failure: GateFailureExpired, Err: err}
		}
		return AuthorizeResult{State: GateRevocationChecked, Failure: GateFailureInvalid, Err: err}
	}

	required := deps.RequiredRoles(path)
	if !deps.Satisfies(claims.Role, required) {
		return AuthorizeResult{
			State:    GateSignatureVerified,
			Failure:  GateFailureRole,
			Claims:   claims,
			Required: required,
		}
	}

	return AuthorizeResult{State: GateAuthorized, Claims: claims, Required: required}
}

package flows

import "time"

// Deps groups flow dependency sets. The root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login     LoginDeps
	Refresh   RefreshDeps
	Logout    LogoutDeps
	Authorize AuthorizeDeps
}

// Owner is the flow-local view of a user record.
type Owner struct {
	ID       string
	Email    string
	Username string
	FullName string
	Role     string
	Active   bool
}

// IssuedAccess is a signed access token and its expiry.
type IssuedAccess struct {
	Token     string
	ExpiresAt time.Time
}

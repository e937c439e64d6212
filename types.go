package tokengate

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/tokengate/internal/audit"
)

// User is the owner view the engine needs from the user directory.
type User struct {
	ID       string
	Email    string
	Username string
	FullName string
	Role     string
	Active   bool
}

// Identity is what the gate attaches to a request after a successful check.
type Identity struct {
	OwnerID   string
	Email     string
	Username  string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// Session is an issued access and refresh token pair plus the owner it was issued to.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             User
}

// UserProvider is the credential verifier and owner lookup the engine depends on.
//
// VerifyCredentials returns [ErrInvalidCredentials] for an unknown identifier or a wrong
// secret. GetUserByID returns [ErrUserNotFound] when the owner no longer exists. Any
// other error is treated as a store failure.
type UserProvider interface {
	VerifyCredentials(ctx context.Context, email, password string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
}

// UserRegistrar is implemented by providers that support self-registration.
// CreateUser returns [ErrAccountExists] on a duplicate email or username.
type UserRegistrar interface {
	CreateUser(ctx context.Context, input NewUser) (User, error)
}

// ExternalIdentityResolver maps a verified third-party identity onto an owner,
// creating the owner on first sight.
type ExternalIdentityResolver interface {
	ResolveExternal(ctx context.Context, provider string, identity ExternalIdentity, defaultRole string) (User, error)
}

// LoginRecorder is implemented by providers that track the last successful login.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

// NewUser is the input of [UserRegistrar.CreateUser]. Password is plaintext; the
// provider owns hashing.
type NewUser struct {
	Email    string
	Username string
	FullName string
	Password string
	Role     string
}

// RegisterRequest is the input of [Engine.Register].
type RegisterRequest struct {
	Email    string
	Password string
	Username string
	FullName string
}

// ExternalIdentity is the result of a completed third-party code exchange.
type ExternalIdentity struct {
	SubjectID   string
	Email       string
	DisplayName string
}

// LogoutRequest names the session material to revoke. Every field is optional.
type LogoutRequest struct {
	AccessToken  string
	RefreshToken string
	// AllDevices revokes every refresh token of the owner named by a verifying AccessToken.
	AllDevices bool
	// OwnerID revokes every refresh token of the owner directly.
	OwnerID string
}

// LogoutResult reports what a logout did. Failures are logged, never returned.
type LogoutResult struct {
	RefreshRevoked    bool
	OwnerTokens       int64
	AccessBlacklisted bool
	Failures          int
}

// SweepResult reports how many expired records a sweep removed.
type SweepResult struct {
	RefreshDeleted    int64
	RevocationDeleted int64
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that writes events to a [slog.Logger].
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink]. A nil logger uses slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

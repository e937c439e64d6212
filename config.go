package tokengate

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/tokengate/jwt"
	"github.com/MrEthical07/tokengate/refresh"
)

// Store backends accepted by StoreConfig.Backend.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the engine configuration. Start from [DefaultConfig]; a signing key has
// no default and Validate rejects a config without one.
type Config struct {
	JWT           JWTConfig
	Refresh       RefreshConfig
	Revocation    RevocationConfig
	Store         StoreConfig
	Sweep         SweepConfig
	Authorization AuthorizationConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the access-token codec.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	AccessTTL     time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
STORE CONFIG
====================================
*/

// RefreshConfig configures refresh-token issuance.
type RefreshConfig struct {
	TTL time.Duration
	// Retention keeps expired records for this long before the sweep removes them.
	Retention   time.Duration
	RedisPrefix string
}

// RevocationConfig configures the access-token blacklist.
type RevocationConfig struct {
	CacheMaxEntries int64
	DisableCache    bool
	RedisPrefix     string
	// FingerprintKey keys the token digest. Empty falls back to the signing key material.
	FingerprintKey []byte
}

// StoreConfig selects the durable backend and bounds every call made to it.
type StoreConfig struct {
	Backend string
	Timeout time.Duration
}

// SweepConfig controls the periodic removal of expired records.
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
}

/*
====================================
POLICY CONFIG
====================================
*/

// AuthorizationConfig configures role handling outside the route table.
type AuthorizationConfig struct {
	// DefaultRole is assigned to registered and externally resolved owners.
	DefaultRole string
}

// RateLimitConfig configures failed-login throttling. It requires a Redis client.
type RateLimitConfig struct {
	Enabled          bool
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	RedisPrefix      string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration without any key material.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodHS256),
			AccessTTL:     jwt.DefaultAccessTTL,
			Leeway:        0,
		},
		Refresh: RefreshConfig{
			TTL:         refresh.DefaultTTL,
			Retention:   24 * time.Hour,
			RedisPrefix: "tg:",
		},
		Revocation: RevocationConfig{
			CacheMaxEntries: 100_000,
			RedisPrefix:     "tg:",
		},
		Store: StoreConfig{
			Backend: BackendRedis,
			Timeout: 2 * time.Second,
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		Authorization: AuthorizationConfig{
			DefaultRole: "user",
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			EnableIPThrottle: true,
			MaxLoginAttempts: 5,
			LoginCooldown:    15 * time.Minute,
			RedisPrefix:      "tg:",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Revocation.FingerprintKey = cloneBytes(cfg.Revocation.FingerprintKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error. A config without signing key
// material is always rejected.
func (c *Config) Validate() error {
	// JWT
	switch jwt.SigningMethod(strings.ToLower(c.JWT.SigningMethod)) {
	case jwt.MethodHS256:
		if len(c.JWT.Secret) == 0 {
			return errors.New("JWT Secret must be configured for hs256")
		}
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("JWT PrivateKey must be configured for ed25519")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.Retention < 0 {
		return errors.New("Refresh Retention must be >= 0")
	}

	// Revocation
	if c.Revocation.CacheMaxEntries < 0 {
		return errors.New("Revocation CacheMaxEntries must be >= 0")
	}

	// Store
	switch c.Store.Backend {
	case BackendRedis, BackendPostgres:
	default:
		return errors.New("Store Backend must be 'redis' or 'postgres'")
	}
	if c.Store.Timeout <= 0 {
		return errors.New("Store Timeout must be > 0")
	}

	// Sweep
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return errors.New("Sweep Interval must be > 0 when Sweep is enabled")
	}

	// Authorization
	if strings.TrimSpace(c.Authorization.DefaultRole) == "" {
		return errors.New("Authorization DefaultRole must be set")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxLoginAttempts <= 0 {
			return errors.New("RateLimit MaxLoginAttempts must be > 0")
		}
		if c.RateLimit.LoginCooldown <= 0 {
			return errors.New("RateLimit LoginCooldown must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/MrEthical07/tokengate"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. TOKENGATE_JWT_SECRET.
const Prefix = "TOKENGATE"

// Users backends.
const (
	UsersPostgres = "postgres"
	UsersMemory   = "memory"
)

// Config is the process configuration of tokengate-server.
type Config struct {
	Server struct {
		Addr            string        `envconfig:"ADDR" default:":8080"`
		ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
		WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
		IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
		ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
		BodyLimit       string        `envconfig:"BODY_LIMIT" default:"64KB"`
		// Per-IP token bucket on /api/auth/*.
		AuthRatePerSecond float64 `envconfig:"AUTH_RATE" default:"5"`
		AuthBurst         int     `envconfig:"AUTH_BURST" default:"10"`
	} `envconfig:"SERVER"`

	Log struct {
		Level     string `envconfig:"LEVEL" default:"info"`
		Format    string `envconfig:"FORMAT" default:"json"`
		AddSource bool   `envconfig:"ADD_SOURCE" default:"false"`
	} `envconfig:"LOG"`

	JWT struct {
		Secret    string        `envconfig:"SECRET" required:"true"`
		AccessTTL time.Duration `envconfig:"ACCESS_TTL" default:"15m"`
		Issuer    string        `envconfig:"ISSUER"`
		Audience  string        `envconfig:"AUDIENCE"`
		Leeway    time.Duration `envconfig:"LEEWAY" default:"0s"`
	} `envconfig:"JWT"`

	Refresh struct {
		TTL       time.Duration `envconfig:"TTL" default:"168h"`
		Retention time.Duration `envconfig:"RETENTION" default:"24h"`
	} `envconfig:"REFRESH"`

	Store struct {
		Backend string        `envconfig:"BACKEND" default:"redis"`
		Timeout time.Duration `envconfig:"TIMEOUT" default:"2s"`
	} `envconfig:"STORE"`

	Redis struct {
		Addr     string `envconfig:"ADDR" default:"localhost:6379"`
		Password string `envconfig:"PASSWORD"`
		DB       int    `envconfig:"DB" default:"0"`
		Prefix   string `envconfig:"PREFIX" default:"tg:"`
	} `envconfig:"REDIS"`

	Postgres struct {
		DSN             string        `envconfig:"DSN"`
		MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"20"`
		MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
		ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"30m"`
	} `envconfig:"POSTGRES"`

	Users struct {
		Backend     string `envconfig:"BACKEND" default:"postgres"`
		DefaultRole string `envconfig:"DEFAULT_ROLE" default:"user"`
	} `envconfig:"USERS"`

	Sweep struct {
		Enabled  bool          `envconfig:"ENABLED" default:"true"`
		Interval time.Duration `envconfig:"INTERVAL" default:"1h"`
	} `envconfig:"SWEEP"`

	RateLimit struct {
		Enabled     bool          `envconfig:"ENABLED" default:"true"`
		MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"5"`
		Cooldown    time.Duration `envconfig:"COOLDOWN" default:"15m"`
	} `envconfig:"RATE_LIMIT"`

	Audit struct {
		Enabled    bool `envconfig:"ENABLED" default:"false"`
		BufferSize int  `envconfig:"BUFFER_SIZE" default:"1024"`
	} `envconfig:"AUDIT"`

	PolicyPath string `envconfig:"POLICY" default:"configs/policy.yaml"`
}

// Load reads envFile (or ./.env when envFile is empty and the file exists) into the
// environment, then decodes TOKENGATE_* variables. Variables already set in the
// environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process config from environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Users.Backend {
	case UsersPostgres, UsersMemory:
	default:
		return fmt.Errorf("%s_USERS_BACKEND must be %q or %q", Prefix, UsersPostgres, UsersMemory)
	}
	if c.NeedsPostgres() && c.Postgres.DSN == "" {
		return fmt.Errorf("%s_POSTGRES_DSN is required for the configured backends", Prefix)
	}
	if c.Server.AuthRatePerSecond < 0 || c.Server.AuthBurst < 0 {
		return fmt.Errorf("%s_SERVER_AUTH_RATE and _AUTH_BURST must be >= 0", Prefix)
	}
	return nil
}

// NeedsPostgres reports whether any configured component stores data in Postgres.
func (c *Config) NeedsPostgres() bool {
	return c.Store.Backend == tokengate.BackendPostgres || c.Users.Backend == UsersPostgres
}

// NeedsRedis reports whether any configured component stores data in Redis.
func (c *Config) NeedsRedis() bool {
	return c.Store.Backend == tokengate.BackendRedis || c.RateLimit.Enabled
}

// Engine maps the process configuration onto the engine configuration. The result is
// validated by the engine builder.
func (c *Config) Engine() tokengate.Config {
	cfg := tokengate.DefaultConfig()

	cfg.JWT.Secret = []byte(c.JWT.Secret)
	cfg.JWT.AccessTTL = c.JWT.AccessTTL
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience
	cfg.JWT.Leeway = c.JWT.Leeway

	cfg.Refresh.TTL = c.Refresh.TTL
	cfg.Refresh.Retention = c.Refresh.Retention
	cfg.Refresh.RedisPrefix = c.Redis.Prefix
	cfg.Revocation.RedisPrefix = c.Redis.Prefix
	cfg.RateLimit.RedisPrefix = c.Redis.Prefix

	cfg.Store.Backend = c.Store.Backend
	cfg.Store.Timeout = c.Store.Timeout

	cfg.Sweep.Enabled = c.Sweep.Enabled
	cfg.Sweep.Interval = c.Sweep.Interval

	cfg.Authorization.DefaultRole = c.Users.DefaultRole

	cfg.RateLimit.Enabled = c.RateLimit.Enabled
	cfg.RateLimit.MaxLoginAttempts = c.RateLimit.MaxAttempts
	cfg.RateLimit.LoginCooldown = c.RateLimit.Cooldown

	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Audit.BufferSize = c.Audit.BufferSize

	return cfg
}

package tokengate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/tokengate/authz"
	internalaudit "github.com/MrEthical07/tokengate/internal/audit"
	internalflows "github.com/MrEthical07/tokengate/internal/flows"
	"github.com/MrEthical07/tokengate/internal/rate"
	"github.com/MrEthical07/tokengate/internal/storage"
	"github.com/MrEthical07/tokengate/jwt"
	"github.com/MrEthical07/tokengate/refresh"
	"github.com/MrEthical07/tokengate/revocation"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use and not safe for concurrent
// use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	db     storage.DBTX

	refreshStore    refresh.Store
	revocationStore revocation.Store

	policy       *authz.Map
	userProvider UserProvider
	auditSink    AuditSink
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the redis backend and the login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDB supplies the handle used by the postgres backend. The schema must already be
// migrated; see storage.Migrate.
func (b *Builder) WithDB(db storage.DBTX) *Builder {
	b.db = db
	return b
}

// WithRefreshStore overrides the backend-selected refresh ledger.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refreshStore = store
	return b
}

// WithRevocationStore overrides the backend-selected durable blacklist.
func (b *Builder) WithRevocationStore(store revocation.Store) *Builder {
	b.revocationStore = store
	return b
}

// WithPolicy sets the route table. It is required.
func (b *Builder) WithPolicy(policy *authz.Map) *Builder {
	b.policy = policy
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the sink used when Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token issue, expiry and store timestamps. Gate
// latency is always measured on the wall clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. It fails when no signing key
// is configured, when no policy or user provider is set, or when the selected backend
// has no client.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.policy == nil {
		return nil, errors.New("authorization policy required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if cfg.RateLimit.Enabled && b.redis == nil {
		return nil, errors.New("RateLimit requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- TOKEN CODEC --------
	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		Secret:        cloneBytes(cfg.JWT.Secret),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	// -------- STORES --------
	refreshStore, revocationStore, err := b.selectStores(cfg, now)
	if err != nil {
		return nil, err
	}

	material := cfg.Revocation.FingerprintKey
	if len(material) == 0 {
		material = cfg.JWT.Secret
	}
	if len(material) == 0 {
		material = cfg.JWT.PrivateKey
	}
	registry, err := revocation.NewRegistry(
		revocationStore,
		revocation.NewFingerprinter(material),
		jwt.DecodeExpiry,
		revocation.Config{
			CacheMaxEntries: cfg.Revocation.CacheMaxEntries,
			DisableCache:    cfg.Revocation.DisableCache,
			StoreTimeout:    cfg.Store.Timeout,
			MaxTTL:          cfg.JWT.AccessTTL + cfg.JWT.Leeway,
			Now:             now,
		},
	)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		now:         now,
		logger:      logger.With("component", "tokengate"),
		jwtManager:  jm,
		refresh:     newBoundedRefreshStore(refreshStore, cfg.Store.Timeout),
		revocations: registry,
		policy:      b.policy,
		users:       b.userProvider,
		metrics:     NewMetrics(cfg.Metrics),
	}

	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:           cfg.RateLimit.RedisPrefix,
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts: cfg.RateLimit.MaxLoginAttempts,
			LoginCooldown:    cfg.RateLimit.LoginCooldown,
		})
	}

	if cfg.Audit.Enabled {
		engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Now:        now,
		}, b.auditSink)
	}

	engine.flows = engine.buildFlowDeps()

	b.built = true
	return engine, nil
}

func (b *Builder) selectStores(cfg Config, now func() time.Time) (refresh.Store, revocation.Store, error) {
	refreshStore, revocationStore := b.refreshStore, b.revocationStore
	opts := refresh.Options{
		TTL:       cfg.Refresh.TTL,
		Retention: cfg.Refresh.Retention,
		Now:       now,
	}

	switch cfg.Store.Backend {
	case BackendRedis:
		if b.redis == nil && (refreshStore == nil || revocationStore == nil) {
			return nil, nil, errors.New("redis backend requires redis client")
		}
		if refreshStore == nil {
			refreshStore = refresh.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix, opts)
		}
		if revocationStore == nil {
			revocationStore = revocation.NewRedisStore(b.redis, cfg.Revocation.RedisPrefix, now)
		}
	case BackendPostgres:
		if b.db == nil && (refreshStore == nil || revocationStore == nil) {
			return nil, nil, errors.New("postgres backend requires database handle")
		}
		if refreshStore == nil {
			refreshStore = refresh.NewPostgresStore(b.db, opts)
		}
		if revocationStore == nil {
			revocationStore = revocation.NewPostgresStore(b.db)
		}
	}
	return refreshStore, revocationStore, nil
}

func (e *Engine) buildFlowDeps() internalflows.Deps {
	warn := func(msg string, args ...any) {
		e.logger.Warn(msg, args...)
	}

	login := internalflows.LoginDeps{
		IssueAccess: e.issueAccess,
		CreateRefresh: func(ctx context.Context, ownerID string) (*refresh.Token, error) {
			return e.refresh.Create(ctx, ownerID)
		},
		Rejected: ErrInvalidCredentials,
		Warn:     warn,
	}
	if e.limiter != nil {
		login.CheckRate = func(ctx context.Context, identifier, ip string) error {
			ctx, cancel := e.bound(ctx)
			defer cancel()
			return e.limiter.CheckLogin(ctx, identifier, ip)
		}
		login.RecordFailure = func(ctx context.Context, identifier, ip string) error {
			ctx, cancel := e.bound(ctx)
			defer cancel()
			return e.limiter.IncrementLogin(ctx, identifier, ip)
		}
		login.ResetRate = func(ctx context.Context, identifier string) error {
			ctx, cancel := e.bound(ctx)
			defer cancel()
			return e.limiter.ResetLogin(ctx, identifier)
		}
	}
	if recorder, ok := e.users.(LoginRecorder); ok {
		login.RecordLogin = func(ctx context.Context, ownerID string) error {
			ctx, cancel := e.bound(ctx)
			defer cancel()
			return recorder.RecordLogin(ctx, ownerID, e.now().UTC())
		}
	}

	return internalflows.Deps{
		Login: login,
		Refresh: internalflows.RefreshDeps{
			Store:        e.refresh,
			Now:          e.now,
			LoadOwner:    e.loadOwner,
			IssueAccess:  e.issueAccess,
			OwnerMissing: ErrUserNotFound,
			Warn:         warn,
		},
		Logout: internalflows.LogoutDeps{
			RevokeRefresh:     e.refresh.Revoke,
			RevokeAllForOwner: e.refresh.RevokeAllForOwner,
			Blacklist:         e.revocations.Add,
			Warn:              warn,
		},
		Authorize: internalflows.AuthorizeDeps{
			RequiresAuth:  e.policy.RequiresAuth,
			RequiredRoles: e.policy.RequiredRoles,
			Satisfies:     e.policy.Satisfies,
			IsRevoked:     e.revocations.IsRevoked,
			Verify:        e.jwtManager.Verify,
		},
	}
}

// Command tokengate-server serves the session lifecycle API in front of the token
// gate. Configuration comes from TOKENGATE_* environment variables, optionally
// seeded from a .env file.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/tokengate"
	"github.com/MrEthical07/tokengate/authz"
	"github.com/MrEthical07/tokengate/httpapi"
	"github.com/MrEthical07/tokengate/internal/logger"
	"github.com/MrEthical07/tokengate/internal/platform/config"
	"github.com/MrEthical07/tokengate/internal/storage"
	promexport "github.com/MrEthical07/tokengate/metrics/export/prometheus"
	"github.com/MrEthical07/tokengate/password"
	"github.com/MrEthical07/tokengate/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile     string
		policyPath  string
		addr        string
		migrateOnly bool
	)
	flagSet := pflag.NewFlagSet("tokengate-server", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", "", "load variables from this file before reading the environment (default: ./.env if present)")
	flagSet.StringVar(&policyPath, "policy", "", "route policy YAML (overrides TOKENGATE_POLICY)")
	flagSet.StringVar(&addr, "addr", "", "listen address (overrides TOKENGATE_SERVER_ADDR)")
	flagSet.BoolVar(&migrateOnly, "migrate-only", false, "apply database migrations and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if policyPath != "" {
		cfg.PolicyPath = policyPath
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	log := logger.New(logger.Config{
		Level:     logger.Level(cfg.Log.Level),
		Format:    logger.Format(cfg.Log.Format),
		AddSource: cfg.Log.AddSource,
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.NeedsPostgres() || migrateOnly {
		db, err = storage.Open(ctx, cfg.Postgres.DSN, storage.PoolConfig{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		if err := storage.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("migrations applied")
	}
	if migrateOnly {
		return nil
	}

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	policy, err := authz.LoadFile(cfg.PolicyPath)
	if err != nil {
		return err
	}

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}
	var directory tokengate.UserProvider
	switch cfg.Users.Backend {
	case config.UsersPostgres:
		directory = users.NewPostgresDirectory(db, hasher, users.WithLogger(log))
	default:
		log.Warn("using in-memory user directory; accounts are lost on restart")
		directory = users.NewMemoryDirectory(hasher)
	}

	b := tokengate.New().
		WithConfig(cfg.Engine()).
		WithPolicy(policy).
		WithUserProvider(directory).
		WithLogger(log)
	if rdb != nil {
		b = b.WithRedis(rdb)
	}
	if db != nil {
		b = b.WithDB(db)
	}
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(tokengate.NewSlogSink(log.With("component", "audit")))
	}
	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if cfg.Sweep.Enabled {
		engine.StartSweeper(ctx)
		defer engine.StopSweeper()
	}

	collector := promexport.NewCollector(engine)
	e, err := httpapi.New(engine, httpapi.Options{
		Logger:         log,
		MetricsHandler: promexport.Handler(collector),
		AuthRate:       cfg.Server.AuthRatePerSecond,
		AuthBurst:      cfg.Server.AuthBurst,
		BodyLimit:      cfg.Server.BodyLimit,
		Ready: func(ctx context.Context) error {
			if rdb != nil {
				if err := rdb.Ping(ctx).Err(); err != nil {
					return err
				}
			}
			if db != nil {
				return db.PingContext(ctx)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

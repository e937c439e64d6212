//go:build integration
// +build integration

package test

import (
	"context"
	"testing"

	"github.com/MrEthical07/tokengate"
	"github.com/MrEthical07/tokengate/authz"
	"github.com/MrEthical07/tokengate/password"
	"github.com/MrEthical07/tokengate/users"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type integrationEnv struct {
	engine *tokengate.Engine
	rdb    *redis.Client
	mr     *miniredis.Miniredis
	alice  tokengate.User
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	if err != nil {
		t.Fatalf("argon2: %v", err)
	}
	dir := users.NewMemoryDirectory(hasher)
	alice, err := dir.CreateUser(context.Background(), tokengate.NewUser{
		Email: "alice@example.com", Username: "alice", Password: "correct-horse", Role: "editor",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	cfg := tokengate.DefaultConfig()
	cfg.JWT.Secret = []byte("integration-secret-0123456789abcdef")
	cfg.Sweep.Enabled = false
	cfg.RateLimit.Enabled = false

	engine, err := tokengate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(dir).
		WithPolicy(authz.MustNew(authz.Policy{
			Public: []string{"/healthz"},
			Routes: []authz.Rule{
				{Pattern: "/api/admin/*", Roles: []string{"admin"}},
				{Pattern: "/api/editor/*", Roles: []string{"editor"}},
				{Pattern: "/api/*"},
			},
		})).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &integrationEnv{engine: engine, rdb: rdb, mr: mr, alice: alice}
}

func (env *integrationEnv) login(t *testing.T) *tokengate.Session {
	t.Helper()
	s, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return s
}

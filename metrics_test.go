package tokengate

import (
	"context"
	"errors"
	"testing"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestEngineLifecycleCounters(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.add("alice@example.com", "alice", "correct-horse", "user")
	ctx := context.Background()

	s, err := env.engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	next, err := env.engine.Refresh(ctx, s.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, s.RefreshToken); err == nil {
		t.Fatal("expected reuse to fail")
	}
	env.engine.Logout(ctx, LogoutRequest{AccessToken: next.AccessToken, RefreshToken: next.RefreshToken})
	if _, err := env.engine.Authorize(ctx, "/api/profile", ""); err == nil {
		t.Fatal("expected missing token to fail")
	}
	if _, err := env.engine.Authorize(ctx, "/healthz", ""); err != nil {
		t.Fatalf("public route: %v", err)
	}

	want := map[MetricID]uint64{
		MetricLoginSuccess:     1,
		MetricLoginFailure:     1,
		MetricRefreshSuccess:   1,
		MetricRefreshFailure:   1,
		MetricLogout:           1,
		MetricTokenBlacklisted: 1,
		MetricGateNoToken:      1,
		MetricGatePublic:       1,
	}
	snap := env.engine.MetricsSnapshot()
	for id, n := range want {
		if got := snap.Counters[id]; got != n {
			t.Fatalf("metric %d = %d, want %d", id, got, n)
		}
	}
	if _, ok := snap.Counters[MetricGateLatency]; ok {
		t.Fatal("latency histogram must not appear as a counter")
	}
}

func TestEngineMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, func(_ *Config, b *Builder) {
		b.WithMetricsEnabled(false)
	})
	env.users.add("alice@example.com", "alice", "correct-horse", "user")

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 0 {
		t.Fatalf("expected disabled metrics to stay at zero, got %d", got)
	}
}

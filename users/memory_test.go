package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/tokengate"
)

func TestMemoryDirectoryLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory(newHasher(t, cheapConfig()))

	u, err := dir.CreateUser(ctx, tokengate.NewUser{
		Email: "Alice@Example.com", Username: "alice", FullName: "Alice", Password: "correct-horse", Role: "user",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := dir.VerifyCredentials(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if got.ID != u.ID || got.Email != "Alice@Example.com" {
		t.Fatalf("unexpected user %+v", got)
	}

	if _, err := dir.VerifyCredentials(ctx, "alice@example.com", "wrong-horse"); !errors.Is(err, tokengate.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := dir.VerifyCredentials(ctx, "nobody@example.com", "correct-horse"); !errors.Is(err, tokengate.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := dir.RecordLogin(ctx, u.ID, at); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
	if !dir.LastLogin(u.ID).Equal(at) {
		t.Fatalf("expected last login %v, got %v", at, dir.LastLogin(u.ID))
	}

	if err := dir.SetActive(u.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if got, _ := dir.GetUserByID(ctx, u.ID); got.Active {
		t.Fatal("expected account to be inactive")
	}
	if _, err := dir.GetUserByID(ctx, "missing"); !errors.Is(err, tokengate.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryDirectoryDuplicates(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory(newHasher(t, cheapConfig()))

	if _, err := dir.CreateUser(ctx, tokengate.NewUser{Email: "a@example.com", Username: "alice", Password: "long-enough"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	tests := []struct {
		name string
		in   tokengate.NewUser
	}{
		{"email differs only in case", tokengate.NewUser{Email: "A@Example.com", Username: "other", Password: "long-enough"}},
		{"username taken", tokengate.NewUser{Email: "b@example.com", Username: "alice", Password: "long-enough"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dir.CreateUser(ctx, tt.in); !errors.Is(err, tokengate.ErrAccountExists) {
				t.Fatalf("expected ErrAccountExists, got %v", err)
			}
		})
	}

	if _, err := dir.CreateUser(ctx, tokengate.NewUser{Email: "c@example.com", Username: "carol", Password: "short"}); !errors.Is(err, tokengate.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestMemoryDirectoryResolveExternal(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory(newHasher(t, cheapConfig()))

	existing, err := dir.CreateUser(ctx, tokengate.NewUser{Email: "alice@example.com", Username: "alice", Password: "long-enough", Role: "admin"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	linked, err := dir.ResolveExternal(ctx, "google", tokengate.ExternalIdentity{SubjectID: "g-1", Email: "ALICE@example.com"}, "user")
	if err != nil {
		t.Fatalf("ResolveExternal: %v", err)
	}
	if linked.ID != existing.ID || linked.Role != "admin" {
		t.Fatalf("expected link to existing owner, got %+v", linked)
	}

	fresh, err := dir.ResolveExternal(ctx, "github", tokengate.ExternalIdentity{SubjectID: "7", Email: "alice.smith@corp.example", DisplayName: "Alice"}, "user")
	if err != nil {
		t.Fatalf("ResolveExternal: %v", err)
	}
	if fresh.ID == existing.ID {
		t.Fatal("expected a new owner")
	}
	if !strings.HasPrefix(fresh.Username, "alice-") {
		t.Fatalf("expected suffixed username, got %q", fresh.Username)
	}
	if fresh.Role != "user" {
		t.Fatalf("expected default role, got %q", fresh.Role)
	}

	again, err := dir.ResolveExternal(ctx, "github", tokengate.ExternalIdentity{SubjectID: "7", Email: "changed@corp.example"}, "user")
	if err != nil {
		t.Fatalf("ResolveExternal: %v", err)
	}
	if again.ID != fresh.ID {
		t.Fatal("known identity must resolve to the same owner")
	}

	if _, err := dir.VerifyCredentials(ctx, "alice.smith@corp.example", "anything-at-all"); !errors.Is(err, tokengate.ErrInvalidCredentials) {
		t.Fatalf("password-less owner must not log in with a password, got %v", err)
	}
}

func TestBaseUsername(t *testing.T) {
	tests := []struct {
		display, email, want string
	}{
		{"Carol King", "c@example.com", "carol-king"},
		{"", "dave.o'brien@example.com", "dave-o-brien"},
		{"  ", "__@example.com", "user"},
		{"Zoë Ünal", "z@example.com", "zo-nal"},
		{strings.Repeat("x", 50), "x@example.com", strings.Repeat("x", maxUsernameLen)},
	}
	for _, tt := range tests {
		if got := baseUsername(tt.display, tt.email); got != tt.want {
			t.Errorf("baseUsername(%q, %q) = %q, want %q", tt.display, tt.email, got, tt.want)
		}
	}

	if got := withSuffix(strings.Repeat("y", maxUsernameLen)); len(got) != maxUsernameLen {
		t.Fatalf("withSuffix length = %d, want %d", len(got), maxUsernameLen)
	}
}

package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{SigningMethod: MethodHS256, Secret: testSecret, Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected missing secret to be rejected")
	}
	if _, err := NewManager(Config{SigningMethod: MethodHS256, Secret: []byte("short")}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	if _, err := NewManager(Config{SigningMethod: "rs256", Secret: testSecret}); err == nil {
		t.Fatal("expected unsupported method to be rejected")
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	in := Claims{OwnerID: "u-1", Email: "a@example.com", Username: "alice", Role: "user"}
	token, err := m.Issue(in, DefaultAccessTTL)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.OwnerID != in.OwnerID || got.Email != in.Email || got.Username != in.Username || got.Role != in.Role {
		t.Fatalf("claims changed in round trip: %+v", got)
	}
	if !got.IssuedAt.Equal(clock.Now()) {
		t.Fatalf("issuedAt = %v, want %v", got.IssuedAt, clock.Now())
	}
	if !got.ExpiresAt.Equal(clock.Now().Add(DefaultAccessTTL)) {
		t.Fatalf("expiresAt = %v", got.ExpiresAt)
	}
	if got.ID == "" {
		t.Fatal("expected token id to be assigned")
	}
}

func TestVerifyExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	token, err := m.Issue(Claims{OwnerID: "u-1", Role: "user"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("expected token to verify before expiry, got %v", err)
	}

	clock.Advance(time.Hour)
	if _, err := m.Verify(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifySignatureMismatch(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)
	other, err := NewManager(Config{SigningMethod: MethodHS256, Secret: []byte("ffffffffffffffffffffffffffffffff"), Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := other.Issue(Claims{OwnerID: "u-1", Role: "admin"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}

	good, err := m.Issue(Claims{OwnerID: "u-1", Role: "user"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(good, ".")
	forged, err := m.Issue(Claims{OwnerID: "u-1", Role: "admin"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	spliced := strings.Split(forged, ".")[0] + "." + strings.Split(forged, ".")[1] + "." + parts[2]
	if _, err := m.Verify(spliced); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected spliced signature to mismatch, got %v", err)
	}
}

func TestVerifyExpiredWinsOverSignature(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)
	other, err := NewManager(Config{SigningMethod: MethodHS256, Secret: []byte("ffffffffffffffffffffffffffffffff"), Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := other.Issue(Claims{OwnerID: "u-1", Role: "admin"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrSignatureMismatch) || errors.Is(err, ErrExpired) {
		t.Fatalf("expected live forged token to mismatch, got %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := m.Verify(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired forged token to report ErrExpired, got %v", err)
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	claims := AccessClaims{OwnerID: "u-1", RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(clock.Now()),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected foreign algorithm to be rejected as mismatch, got %v", err)
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.Verify(none); err == nil {
		t.Fatal("expected alg=none to be rejected")
	}
}

func TestVerifyMalformed(t *testing.T) {
	m := newHSManager(t, &fakeClock{now: time.Now()})
	for _, in := range []string{"", "not.a.jwt", "abc", "a.b.c.d"} {
		if _, err := m.Verify(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Verify(%q) = %v, want ErrMalformed", in, err)
		}
	}
}

func TestVerifyIssuerAndAudience(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, err := NewManager(Config{SigningMethod: MethodHS256, Secret: testSecret, Issuer: "tokengate", Audience: "api", Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	other, err := NewManager(Config{SigningMethod: MethodHS256, Secret: testSecret, Issuer: "other", Audience: "api", Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := other.Issue(Claims{OwnerID: "u-1"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected wrong issuer to be rejected, got %v", err)
	}
}

func TestEd25519KeyPair(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, KeyID: "k1"})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	verifier, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub, KeyID: "k1"})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	token, err := signer.Issue(Claims{OwnerID: "u-9", Role: "admin"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Role != "admin" {
		t.Fatalf("role = %q", got.Role)
	}
	if _, err := verifier.Issue(Claims{OwnerID: "u-9"}, time.Minute); err == nil {
		t.Fatal("expected verify-only codec to refuse issuing")
	}
}

func TestDecodeExpiryDoesNotVerify(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	other, err := NewManager(Config{SigningMethod: MethodHS256, Secret: []byte("ffffffffffffffffffffffffffffffff"), Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := other.Issue(Claims{OwnerID: "u-1"}, 10*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	m := newHSManager(t, clock)
	exp, err := m.ExpiresAt(token)
	if err != nil {
		t.Fatalf("expires at: %v", err)
	}
	if !exp.Equal(clock.Now().Add(10 * time.Minute)) {
		t.Fatalf("exp = %v", exp)
	}

	if _, err := DecodeExpiry("garbage"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the signature algorithm used for access tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// DefaultAccessTTL is the lifetime of an access token when the caller does not pick one.
const DefaultAccessTTL = 15 * time.Minute

const minHMACSecretLen = 32

// Config holds the codec's key material and validation knobs.
type Config struct {
	SigningMethod SigningMethod
	// Secret is the HS256 key. It is required for MethodHS256 and has no default.
	Secret []byte
	// PrivateKey and PublicKey are raw or PEM encoded Ed25519 keys.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Claims is the identity carried by an access token.
type Claims struct {
	ID        string
	OwnerID   string
	Email     string
	Username  string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AccessClaims is the wire form of Claims.
type AccessClaims struct {
	OwnerID  string `json:"ownerId"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager is the token codec. It is safe for concurrent use.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// NewManager validates cfg and returns a ready codec. A missing signing key is an error.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires a signing secret")
		}
		if len(cfg.Secret) < minHMACSecretLen {
			return nil, fmt.Errorf("hs256 secret must be at least %d bytes", minHMACSecretLen)
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.Secret
		m.verifyKey = cfg.Secret
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			m.verifyKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		}
		if m.verifyKey == nil {
			return nil, errors.New("ed25519 requires a private or public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// Issue signs claims with issuedAt = now and expiresAt = now + ttl. A token id is
// assigned when claims.ID is empty. Errors are configuration faults.
func (m *Manager) Issue(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("access ttl must be > 0")
	}
	if m.signKey == nil {
		return "", errors.New("codec has no signing key")
	}

	now := m.config.Now()
	id := claims.ID
	if id == "" {
		id = uuid.NewString()
	}

	wire := AccessClaims{
		OwnerID:  claims.OwnerID,
		Email:    claims.Email,
		Username: claims.Username,
		Role:     claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   claims.OwnerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		wire.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, wire)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and then the expiry. The returned error wraps one of
// ErrMalformed, ErrExpired or ErrSignatureMismatch. A token past its expiry reports
// ErrExpired even when its signature does not verify.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, m.keyFunc)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrSignatureMismatch) && m.pastExpiry(tokenStr) {
			return nil, fmt.Errorf("%w: %w", ErrExpired, err)
		}
		return nil, err
	}

	wire, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if wire.OwnerID == "" {
		return nil, fmt.Errorf("%w: missing ownerId", ErrMalformed)
	}

	return fromWire(wire), nil
}

// ExpiresAt decodes the expiry of a token without verifying its signature. It is a
// parse-only operation for bookkeeping and must never be used to trust a token.
func (m *Manager) ExpiresAt(tokenStr string) (time.Time, error) {
	return DecodeExpiry(tokenStr)
}

// DecodeExpiry is the key-less form of Manager.ExpiresAt.
func DecodeExpiry(tokenStr string) (time.Time, error) {
	var wire AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &wire); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if wire.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp", ErrMalformed)
	}
	return wire.ExpiresAt.Time, nil
}

func (m *Manager) pastExpiry(tokenStr string) bool {
	exp, err := DecodeExpiry(tokenStr)
	if err != nil {
		return false
	}
	return !m.config.Now().Before(exp.Add(m.config.Leeway))
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	if m.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != m.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}
	return m.verifyKey, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}

func fromWire(wire *AccessClaims) *Claims {
	out := &Claims{
		ID:       wire.ID,
		OwnerID:  wire.OwnerID,
		Email:    wire.Email,
		Username: wire.Username,
		Role:     wire.Role,
	}
	if wire.IssuedAt != nil {
		out.IssuedAt = wire.IssuedAt.Time
	}
	if wire.ExpiresAt != nil {
		out.ExpiresAt = wire.ExpiresAt.Time
	}
	return out
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

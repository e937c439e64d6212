package revocation

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

const fingerprintDomain = "tokengate.revocation.fingerprint.v1"

// Fingerprinter computes the deterministic, non-reversible digest under which a token
// is blacklisted. Every process sharing a durable store must use the same key.
type Fingerprinter struct {
	key [32]byte
}

// NewFingerprinter derives the hashing key from the fixed domain string and optional
// key material. Passing the signing secret ties fingerprints to one deployment.
func NewFingerprinter(material []byte) *Fingerprinter {
	seed := make([]byte, 0, len(fingerprintDomain)+len(material))
	seed = append(seed, fingerprintDomain...)
	seed = append(seed, material...)
	return &Fingerprinter{key: blake3.Sum256(seed)}
}

// Fingerprint returns the hex digest of token.
func (f *Fingerprinter) Fingerprint(token string) string {
	hasher, err := blake3.NewKeyed(f.key[:])
	if err != nil {
		panic("revocation: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}

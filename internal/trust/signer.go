// Package trust implements the signing, hashing, and offline-verifiable
// envelope primitives that back the tenant binding and subscription
// artifacts: canonical hashing for checksums, an Ed25519 signer capability,
// and the SignedBinding/SignedSubscription types themselves.
package trust

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Signer is the capability a tenant CA (or the root CA, for self-signed
// artifacts) exposes to produce and check signatures over canonicalized
// payloads. Every signable envelope in this package goes through it rather
// than calling ed25519 directly, so callers never have to know the key
// encoding.
type Signer interface {
	Sign(data []byte) (string, error)
	Verify(data []byte, sigHex string) bool
	PublicKey() string
	PublicKeyBytes() ed25519.PublicKey
	KeyID() string
}

// Ed25519Signer is the default Signer implementation: a single Ed25519
// keypair identified by KeyID (typically a tenant_id or "root").
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	keyID   string
}

// NewEd25519Signer generates a fresh keypair for keyID.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("trust: generate signing key: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub, keyID: keyID}, nil
}

// NewEd25519SignerFromKey wraps an already-provisioned private key, e.g.
// one loaded from the on-disk tenant CA material.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		keyID:   keyID,
	}
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.privKey, data)), nil
}

func (s *Ed25519Signer) Verify(data []byte, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.pubKey, data, sig)
}

func (s *Ed25519Signer) PublicKey() string { return hex.EncodeToString(s.pubKey) }

func (s *Ed25519Signer) PublicKeyBytes() ed25519.PublicKey { return s.pubKey }

func (s *Ed25519Signer) KeyID() string { return s.keyID }

// VerifyWithKey verifies a detached signature against a raw public key,
// for callers that only hold the PEM-derived key material (e.g. the
// activation daemon checking a binding it did not itself sign).
func VerifyWithKey(pubKey ed25519.PublicKey, data []byte, sigHex string) (bool, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("trust: invalid signature encoding: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("trust: invalid public key size %d", len(pubKey))
	}
	return ed25519.Verify(pubKey, data, sig), nil
}

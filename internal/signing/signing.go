// Package signing implements Ed25519 keypair generation, event/manifest
// signing, and verification. A signature always covers the canonical
// JSON bytes of its subject with the signature field itself removed.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Keypair is a generated Ed25519 keypair plus its derived key id.
type Keypair struct {
	PrivateKey  ed25519.PrivateKey
	PublicKey   ed25519.PublicKey
	KeyID       string
	PublicKeyB64 string
}

// KeyIDFromPublicKey derives "bp1_" + first 16 hex chars of
// SHA-256(raw public key bytes).
func KeyIDFromPublicKey(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return "bp1_" + hex.EncodeToString(sum[:])[:16]
}

// GenerateKeypair creates a fresh Ed25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signing: generate keypair: %w", err)
	}
	return &Keypair{
		PrivateKey:   priv,
		PublicKey:    pub,
		KeyID:        KeyIDFromPublicKey(pub),
		PublicKeyB64: base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// LoadPrivateKeyB64 decodes a base64-encoded raw Ed25519 private key.
func LoadPrivateKeyB64(b64 string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("signing: decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

// LoadPublicKeyB64 decodes a base64-encoded raw Ed25519 public key.
func LoadPublicKeyB64(b64 string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("signing: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("signing: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// Sign signs canonicalBytes (the caller has already excluded the sig
// field from canonicalization) and returns the base64 signature.
func Sign(priv ed25519.PrivateKey, canonicalBytes []byte) string {
	sig := ed25519.Sign(priv, canonicalBytes)
	return base64.StdEncoding.EncodeToString(sig)
}

// Verify checks a base64 signature over canonicalBytes with pub.
// Returns false (never an error) for malformed base64 or a mismatched
// signature — callers distinguish "invalid" from "I/O error" upstream.
func Verify(pub ed25519.PublicKey, canonicalBytes []byte, sigB64 string) bool {
	if sigB64 == "" {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, canonicalBytes, sig)
}

package shred

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/provara-protocol/provara/internal/signing"
	"github.com/provara-protocol/provara/internal/verrors"
)

// PrivacyTag marks a payload as crypto-shredded. Reducers and other
// readers must check for this tag before attempting to interpret
// payload fields.
const PrivacyTag = "aes-gcm-v1"

// Envelope is the on-disk shape of a shredded payload. It replaces the
// plaintext payload in the signed event, so it is what gets hashed and
// signed — shredding must happen before sign_event, never after.
type Envelope struct {
	Privacy      string `json:"_privacy"`
	KeyID        string `json:"kid"`
	NonceB64     string `json:"nonce_b64"`
	CiphertextB64 string `json:"ciphertext_b64"`
}

// keyID derives a short, opaque identifier for a raw AES key, reusing
// the same SHA-256-based derivation the signing package uses for
// Ed25519 key ids, so key identifiers look consistent vault-wide.
func keyID(rawKey []byte) string {
	return "kid_" + signing.KeyIDFromPublicKey(rawKey)[len("bp1_"):]
}

// Shred encrypts plaintext under a freshly generated AES-256-GCM key
// and random 12-byte nonce, stores the key in sidecar, and returns the
// replacement payload envelope as raw JSON.
func Shred(sidecar *Sidecar, plaintext []byte) (json.RawMessage, error) {
	rawKey := make([]byte, 32)
	if _, err := rand.Read(rawKey); err != nil {
		return nil, fmt.Errorf("shred: generate key: %w", err)
	}
	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("shred: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("shred: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("shred: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	kid := keyID(rawKey)
	if err := sidecar.Put(kid, rawKey); err != nil {
		return nil, fmt.Errorf("shred: store key: %w", err)
	}

	env := Envelope{
		Privacy:       PrivacyTag,
		KeyID:         kid,
		NonceB64:      base64.StdEncoding.EncodeToString(nonce),
		CiphertextB64: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return json.Marshal(env)
}

// IsShredded reports whether payload carries a shred envelope.
func IsShredded(payload json.RawMessage) bool {
	var probe struct {
		Privacy string `json:"_privacy"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Privacy == PrivacyTag
}

// Unshred recovers the original plaintext payload from a shred
// envelope, using the key still held in sidecar. It returns
// verrors.CodeKeyNotFound if the row has been erased.
func Unshred(sidecar *Sidecar, payload json.RawMessage) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, verrors.Wrap(verrors.CodeVaultStructureInvalid, "payload is not a shred envelope", err).WithSection("4.L")
	}
	if env.Privacy != PrivacyTag {
		return nil, verrors.Newf(verrors.CodeVaultStructureInvalid, "unsupported privacy scheme %q", env.Privacy).WithSection("4.L")
	}

	rawKey, err := sidecar.Get(env.KeyID)
	if err != nil {
		return nil, fmt.Errorf("shred: read key: %w", err)
	}
	if rawKey == nil {
		return nil, verrors.Newf(verrors.CodeKeyNotFound, "shred key %s has been erased", env.KeyID).
			WithSection("4.L").WithContext("kid", env.KeyID)
	}

	nonce, err := base64.StdEncoding.DecodeString(env.NonceB64)
	if err != nil {
		return nil, verrors.Wrap(verrors.CodeHashFormat, "malformed nonce_b64", err).WithSection("4.L")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.CiphertextB64)
	if err != nil {
		return nil, verrors.Wrap(verrors.CodeHashFormat, "malformed ciphertext_b64", err).WithSection("4.L")
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("shred: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("shred: new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, verrors.Wrap(verrors.CodeInvalidSignature, "shred ciphertext failed to authenticate", err).WithSection("4.L")
	}
	return plaintext, nil
}

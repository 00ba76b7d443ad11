// Package keyring materializes identity/keys.json into an in-memory
// registry and resolves key ids to public keys, either strictly
// (rejecting revoked keys) or historically (for verifying signatures
// that predate a revocation).
package keyring

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/provara-protocol/provara/internal/signing"
	"github.com/provara-protocol/provara/internal/verrors"
)

// Status values for a key registry entry.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

// Entry is one key registry record. Private keys never appear here.
type Entry struct {
	KeyID        string   `json:"key_id"`
	Algorithm    string   `json:"algorithm"`
	PublicKeyB64 string   `json:"public_key_b64"`
	Roles        []string `json:"roles,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	Status       string   `json:"status"`
	CreatedAtUTC string   `json:"created_at_utc"`
}

// file is the on-disk shape of identity/keys.json.
type file struct {
	Keys []Entry `json:"keys"`
}

// Registry holds the vault's key material in memory.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Load reads identity/keys.json from path into a new Registry.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(raw)
}

// LoadBytes parses the identity/keys.json document shape from raw bytes.
func LoadBytes(raw []byte) (*Registry, error) {
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, verrors.Wrap(verrors.CodeVaultStructureInvalid, "malformed identity/keys.json", err)
	}
	r := New()
	for _, e := range f.Keys {
		r.entries[e.KeyID] = e
	}
	return r, nil
}

// Marshal serializes the registry back to the identity/keys.json shape,
// with entries sorted by key_id for deterministic output.
func (r *Registry) Marshal() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	f := file{Keys: make([]Entry, 0, len(ids))}
	for _, id := range ids {
		f.Keys = append(f.Keys, r.entries[id])
	}
	return json.MarshalIndent(f, "", "  ")
}

// Put inserts or replaces an entry.
func (r *Registry) Put(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.KeyID] = e
}

// Get returns the raw entry regardless of status.
func (r *Registry) Get(keyID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[keyID]
	return e, ok
}

// Revoke marks an existing key revoked. It does not check who signed
// the revocation; self-revocation refusal is enforced by the caller
// (internal/redaction) before this is invoked.
func (r *Registry) Revoke(keyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[keyID]
	if !ok {
		return verrors.Newf(verrors.CodeKeyNotFound, "key %s not found", keyID).WithSection("4.J")
	}
	e.Status = StatusRevoked
	r.entries[keyID] = e
	return nil
}

// Resolve returns the public key for keyID, strictly: it fails if the
// key is unknown, uses an unrecognized algorithm, or has been revoked.
// This is the default resolver per the spec's Open Question decision
// (see DESIGN.md).
func (r *Registry) Resolve(keyID string) (ed25519.PublicKey, error) {
	e, ok := r.lookup(keyID)
	if !ok {
		return nil, verrors.Newf(verrors.CodeUnknownKeyID, "unknown key_id %s", keyID).WithSection("4.E")
	}
	if e.Algorithm != "Ed25519" {
		return nil, verrors.Newf(verrors.CodeKeyNotFound, "key %s uses unrecognized algorithm %q", keyID, e.Algorithm).WithSection("4.E")
	}
	if e.Status == StatusRevoked {
		return nil, verrors.Newf(verrors.CodeKeyNotFound, "key %s is revoked", keyID).WithSection("4.E").WithContext("key_id", keyID)
	}
	return signing.LoadPublicKeyB64(e.PublicKeyB64)
}

// ResolveHistorical returns the public key for keyID ignoring status,
// for verifying signatures that predate a revocation.
func (r *Registry) ResolveHistorical(keyID string) (ed25519.PublicKey, error) {
	e, ok := r.lookup(keyID)
	if !ok {
		return nil, verrors.Newf(verrors.CodeUnknownKeyID, "unknown key_id %s", keyID).WithSection("4.E")
	}
	if e.Algorithm != "Ed25519" {
		return nil, verrors.Newf(verrors.CodeKeyNotFound, "key %s uses unrecognized algorithm %q", keyID, e.Algorithm).WithSection("4.E")
	}
	return signing.LoadPublicKeyB64(e.PublicKeyB64)
}

func (r *Registry) lookup(keyID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[keyID]
	return e, ok
}

// Len returns the number of entries in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

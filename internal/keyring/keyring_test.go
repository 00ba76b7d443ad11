package keyring

import (
	"testing"

	"github.com/provara-protocol/provara/internal/signing"
)

func newTestEntry(t *testing.T) (Entry, *signing.Keypair) {
	t.Helper()
	kp, err := signing.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return Entry{
		KeyID:        kp.KeyID,
		Algorithm:    "Ed25519",
		PublicKeyB64: kp.PublicKeyB64,
		Status:       StatusActive,
		CreatedAtUTC: "2026-01-01T00:00:00Z",
	}, kp
}

func TestResolve_ActiveKeySucceeds(t *testing.T) {
	r := New()
	entry, kp := newTestEntry(t)
	r.Put(entry)

	pub, err := r.Resolve(entry.KeyID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(pub) != string(kp.PublicKey) {
		t.Error("resolved public key does not match")
	}
}

func TestResolve_RejectsRevoked(t *testing.T) {
	r := New()
	entry, _ := newTestEntry(t)
	r.Put(entry)
	if err := r.Revoke(entry.KeyID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := r.Resolve(entry.KeyID); err == nil {
		t.Error("expected strict Resolve to reject a revoked key")
	}
}

func TestResolveHistorical_AcceptsRevoked(t *testing.T) {
	r := New()
	entry, kp := newTestEntry(t)
	r.Put(entry)
	if err := r.Revoke(entry.KeyID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	pub, err := r.ResolveHistorical(entry.KeyID)
	if err != nil {
		t.Fatalf("ResolveHistorical: %v", err)
	}
	if string(pub) != string(kp.PublicKey) {
		t.Error("resolved historical public key does not match")
	}
}

func TestResolve_UnknownKeyID(t *testing.T) {
	r := New()
	if _, err := r.Resolve("bp1_doesnotexist0000"); err == nil {
		t.Error("expected error for unknown key_id")
	}
}

func TestLoadBytes_RoundTripsMarshal(t *testing.T) {
	r := New()
	entry, _ := newTestEntry(t)
	r.Put(entry)

	raw, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	r2, err := LoadBytes(raw)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if r2.Len() != 1 {
		t.Errorf("expected 1 entry after round trip, got %d", r2.Len())
	}
	got, ok := r2.Get(entry.KeyID)
	if !ok || got.PublicKeyB64 != entry.PublicKeyB64 {
		t.Errorf("round-tripped entry mismatch: %+v", got)
	}
}

func TestRevoke_UnknownKeyFails(t *testing.T) {
	r := New()
	if err := r.Revoke("bp1_nope"); err == nil {
		t.Error("expected error revoking unknown key")
	}
}

package signing

import "testing"

func TestSignManifestVerifyManifest_RoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	root := "deadbeef00000000000000000000000000000000000000000000000000000000"[:64]
	m, err := SignManifest(root, kp.KeyID, "1.0", "2026-01-01T00:00:00Z", kp.PrivateKey)
	if err != nil {
		t.Fatalf("SignManifest: %v", err)
	}
	if !VerifyManifest(m, kp.PublicKey, "") {
		t.Error("expected manifest signature to verify")
	}
	if !VerifyManifest(m, kp.PublicKey, root) {
		t.Error("expected manifest signature to verify against expected root")
	}
}

func TestVerifyManifest_RejectsRootMismatch(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	root := "deadbeef00000000000000000000000000000000000000000000000000000000"[:64]
	m, err := SignManifest(root, kp.KeyID, "1.0", "2026-01-01T00:00:00Z", kp.PrivateKey)
	if err != nil {
		t.Fatalf("SignManifest: %v", err)
	}
	if VerifyManifest(m, kp.PublicKey, "0000000000000000000000000000000000000000000000000000000000000000"[:64]) {
		t.Error("expected root mismatch to fail verification")
	}
}

func TestVerifyManifest_RejectsTamperedField(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	root := "deadbeef00000000000000000000000000000000000000000000000000000000"[:64]
	m, err := SignManifest(root, kp.KeyID, "1.0", "2026-01-01T00:00:00Z", kp.PrivateKey)
	if err != nil {
		t.Fatalf("SignManifest: %v", err)
	}
	m.SpecVersion = "1.1"
	if VerifyManifest(m, kp.PublicKey, "") {
		t.Error("expected tampered spec_version to fail verification")
	}
}

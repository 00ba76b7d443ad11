package signing

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateKeypair_DerivesKeyID(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if !strings.HasPrefix(kp.KeyID, "bp1_") {
		t.Errorf("key id missing bp1_ prefix: %s", kp.KeyID)
	}
	if len(kp.KeyID) != len("bp1_")+16 {
		t.Errorf("key id wrong length: %s", kp.KeyID)
	}

	again := KeyIDFromPublicKey(kp.PublicKey)
	if again != kp.KeyID {
		t.Errorf("KeyIDFromPublicKey not deterministic: %s != %s", again, kp.KeyID)
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	msg := []byte(`{"a":1,"b":2}`)
	sig := Sign(kp.PrivateKey, msg)
	if !Verify(kp.PublicKey, msg, sig) {
		t.Error("expected signature to verify")
	}
}

func TestVerify_RejectsTamperedMessage(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	sig := Sign(kp.PrivateKey, []byte(`{"a":1}`))
	if Verify(kp.PublicKey, []byte(`{"a":2}`), sig) {
		t.Error("tampered message unexpectedly verified")
	}
}

func TestVerify_RejectsWrongKey(t *testing.T) {
	kp1, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	kp2, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	msg := []byte(`{"a":1}`)
	sig := Sign(kp1.PrivateKey, msg)
	if Verify(kp2.PublicKey, msg, sig) {
		t.Error("signature unexpectedly verified with wrong key")
	}
}

func TestVerify_RejectsMalformedSignature(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if Verify(kp.PublicKey, []byte("msg"), "not-base64!!") {
		t.Error("malformed signature unexpectedly verified")
	}
	if Verify(kp.PublicKey, []byte("msg"), "") {
		t.Error("empty signature unexpectedly verified")
	}
}

func TestLoadKeys_B64RoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	privB64 := base64.StdEncoding.EncodeToString(kp.PrivateKey)
	priv, err := LoadPrivateKeyB64(privB64)
	if err != nil {
		t.Fatalf("LoadPrivateKeyB64: %v", err)
	}
	pub, err := LoadPublicKeyB64(kp.PublicKeyB64)
	if err != nil {
		t.Fatalf("LoadPublicKeyB64: %v", err)
	}
	msg := []byte("hello vault")
	sig := Sign(priv, msg)
	if !Verify(pub, msg, sig) {
		t.Error("round-tripped keys failed to verify")
	}
}

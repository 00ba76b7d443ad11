package signing

import (
	"testing"

	"github.com/provara-protocol/provara/internal/event"
)

func TestSignEventVerifyEvent_RoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	e := &event.Event{
		Type:         event.TypeGenesis,
		Namespace:    event.NamespaceCanonical,
		Actor:        "root",
		TsLogical:    0,
		TimestampUTC: "2026-01-01T00:00:00Z",
		Payload:      []byte(`{"uid":"u1","root_key_id":"x","birth_timestamp":"2026-01-01T00:00:00Z"}`),
	}
	if _, err := SignEvent(e, kp.PrivateKey, kp.KeyID); err != nil {
		t.Fatalf("SignEvent: %v", err)
	}
	if e.ActorKeyID != kp.KeyID {
		t.Errorf("actor_key_id not stamped: %s", e.ActorKeyID)
	}
	if err := VerifyEvent(e, kp.PublicKey); err != nil {
		t.Errorf("VerifyEvent: %v", err)
	}
}

func TestVerifyEvent_RejectsTamperedPayload(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	e := &event.Event{
		Type:         event.TypeGenesis,
		Namespace:    event.NamespaceCanonical,
		Actor:        "root",
		TimestampUTC: "2026-01-01T00:00:00Z",
		Payload:      []byte(`{"uid":"u1","root_key_id":"x","birth_timestamp":"2026-01-01T00:00:00Z"}`),
	}
	if _, err := SignEvent(e, kp.PrivateKey, kp.KeyID); err != nil {
		t.Fatalf("SignEvent: %v", err)
	}
	e.Payload = []byte(`{"uid":"u2","root_key_id":"x","birth_timestamp":"2026-01-01T00:00:00Z"}`)
	if err := VerifyEvent(e, kp.PublicKey); err == nil {
		t.Error("expected tampered payload to fail verification")
	}
}

func TestVerifyEvent_RejectsEventIDMismatch(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	e := &event.Event{
		Type:         event.TypeGenesis,
		Namespace:    event.NamespaceCanonical,
		Actor:        "root",
		TimestampUTC: "2026-01-01T00:00:00Z",
		Payload:      []byte(`{"uid":"u1","root_key_id":"x","birth_timestamp":"2026-01-01T00:00:00Z"}`),
	}
	if _, err := SignEvent(e, kp.PrivateKey, kp.KeyID); err != nil {
		t.Fatalf("SignEvent: %v", err)
	}
	e.EventID = "evt_0000000000000000000000"
	if err := VerifyEvent(e, kp.PublicKey); err == nil {
		t.Error("expected mutated event_id to fail verification")
	}
}

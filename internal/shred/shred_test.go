package shred

import (
	"encoding/json"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
)

func newTestSidecar(t *testing.T) *Sidecar {
	t.Helper()
	db := dbm.NewMemDB()
	return NewSidecar(db)
}

func TestShred_RoundTrip(t *testing.T) {
	sc := newTestSidecar(t)
	plaintext := []byte(`{"subject":"patient_42","predicate":"diagnosis","value":"confidential"}`)

	env, err := Shred(sc, plaintext)
	if err != nil {
		t.Fatalf("Shred: %v", err)
	}
	if !IsShredded(env) {
		t.Fatal("expected envelope to report as shredded")
	}

	recovered, err := Unshred(sc, env)
	if err != nil {
		t.Fatalf("Unshred: %v", err)
	}
	if string(recovered) != string(plaintext) {
		t.Errorf("recovered payload = %s, want %s", recovered, plaintext)
	}
}

func TestShred_ProducesDistinctKeysPerCall(t *testing.T) {
	sc := newTestSidecar(t)
	env1, err := Shred(sc, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Shred: %v", err)
	}
	env2, err := Shred(sc, []byte(`{"a":2}`))
	if err != nil {
		t.Fatalf("Shred: %v", err)
	}
	if string(env1) == string(env2) {
		t.Error("expected distinct envelopes for separate shred calls")
	}
}

func TestErase_MakesPlaintextUnrecoverable(t *testing.T) {
	sc := newTestSidecar(t)
	env, err := Shred(sc, []byte(`{"subject":"x","predicate":"y"}`))
	if err != nil {
		t.Fatalf("Shred: %v", err)
	}

	var e Envelope
	if err := json.Unmarshal(env, &e); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	if err := sc.Erase(e.KeyID); err != nil {
		t.Fatalf("Erase: %v", err)
	}

	if _, err := Unshred(sc, env); err == nil {
		t.Error("expected Unshred to fail after erasure")
	}
}

func TestIsShredded_FalseForPlainPayload(t *testing.T) {
	if IsShredded([]byte(`{"subject":"x","predicate":"y"}`)) {
		t.Error("expected plain payload to not be reported as shredded")
	}
}

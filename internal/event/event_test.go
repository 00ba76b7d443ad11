package event

import (
	"strings"
	"testing"
)

func genesis() *Event {
	return &Event{
		Type:         TypeGenesis,
		Namespace:    NamespaceCanonical,
		Actor:        "root",
		ActorKeyID:   "bp1_deadbeefdeadbeef",
		TsLogical:    1,
		TimestampUTC: "2026-01-01T00:00:00Z",
		Payload:      []byte(`{"uid":"u1","root_key_id":"bp1_deadbeefdeadbeef","birth_timestamp":"2026-01-01T00:00:00Z"}`),
	}
}

func TestDeriveEventID_Deterministic(t *testing.T) {
	e := genesis()
	id1, err := DeriveEventID(e)
	if err != nil {
		t.Fatalf("DeriveEventID: %v", err)
	}
	id2, err := DeriveEventID(e)
	if err != nil {
		t.Fatalf("DeriveEventID: %v", err)
	}
	if id1 != id2 {
		t.Errorf("derivation not deterministic: %s != %s", id1, id2)
	}
	if !strings.HasPrefix(id1, "evt_") {
		t.Errorf("missing evt_ prefix: %s", id1)
	}
	if len(id1) != len("evt_")+24 {
		t.Errorf("wrong id length: %s", id1)
	}
}

func TestDeriveEventID_ExcludesEventIDAndSig(t *testing.T) {
	e := genesis()
	id, err := DeriveEventID(e)
	if err != nil {
		t.Fatalf("DeriveEventID: %v", err)
	}
	e.EventID = id

	// Setting event_id on the struct must not change the derived id,
	// since event_id is excluded from its own derivation input.
	id2, err := DeriveEventID(e)
	if err != nil {
		t.Fatalf("DeriveEventID: %v", err)
	}
	if id != id2 {
		t.Errorf("event_id field leaked into its own derivation: %s != %s", id, id2)
	}

	e.Sig = "c2lnbmF0dXJl"
	id3, err := DeriveEventID(e)
	if err != nil {
		t.Fatalf("DeriveEventID: %v", err)
	}
	if id != id3 {
		t.Errorf("sig field leaked into event_id derivation: %s != %s", id, id3)
	}
}

func TestDeriveEventID_ChangesOnMutation(t *testing.T) {
	e := genesis()
	id1, _ := DeriveEventID(e)
	e.Payload = []byte(`{"uid":"u2","root_key_id":"bp1_deadbeefdeadbeef","birth_timestamp":"2026-01-01T00:00:00Z"}`)
	id2, _ := DeriveEventID(e)
	if id1 == id2 {
		t.Error("mutated payload produced the same event_id")
	}
}

func TestSigningBytes_IncludesEventIDExcludesSig(t *testing.T) {
	e := genesis()
	id, _ := DeriveEventID(e)
	e.EventID = id
	e.Sig = "placeholder"

	withSig, err := SigningBytes(e)
	if err != nil {
		t.Fatalf("SigningBytes: %v", err)
	}
	if strings.Contains(string(withSig), "placeholder") {
		t.Error("signing bytes must not include sig")
	}
	if !strings.Contains(string(withSig), id) {
		t.Error("signing bytes must include event_id")
	}
}

func TestValidateStructure_GenesisOK(t *testing.T) {
	if err := ValidateStructure(genesis()); err != nil {
		t.Errorf("expected valid genesis event, got %v", err)
	}
}

func TestValidateStructure_RejectsBadNamespace(t *testing.T) {
	e := genesis()
	e.Namespace = "weird"
	if err := ValidateStructure(e); err == nil {
		t.Error("expected error for invalid namespace")
	}
}

func TestValidateStructure_RejectsMissingPayloadField(t *testing.T) {
	e := genesis()
	e.Payload = []byte(`{"uid":"u1"}`)
	if err := ValidateStructure(e); err == nil {
		t.Error("expected error for missing root_key_id/birth_timestamp")
	}
}

func TestValidateStructure_RejectsNonGenesisWithoutPrevHash(t *testing.T) {
	e := genesis()
	e.Type = TypeObservation
	e.Payload = []byte(`{"subject":"s","predicate":"p"}`)
	e.PrevEventHash = nil
	if err := ValidateStructure(e); err == nil {
		t.Error("expected error for non-genesis event missing prev_event_hash")
	}
}

func TestValidateStructure_AcceptsReverseDomainType(t *testing.T) {
	e := genesis()
	e.Type = "com.provara.redaction"
	prev := "evt_abc"
	e.PrevEventHash = &prev
	e.Payload = []byte(`{"target_event_id":"evt_abc","reason":"gdpr","authority":"root"}`)
	if err := ValidateStructure(e); err != nil {
		t.Errorf("expected reverse-domain type to pass structural validation: %v", err)
	}
}

func TestValidateBatch_AccumulatesRejections(t *testing.T) {
	good := genesis()
	bad := genesis()
	bad.Namespace = "bogus"

	accepted, rejected := ValidateBatch([]*Event{good, bad})
	if len(accepted) != 1 {
		t.Errorf("expected 1 accepted, got %d", len(accepted))
	}
	if len(rejected) != 1 || rejected[0].Index != 1 {
		t.Errorf("expected rejection at index 1, got %+v", rejected)
	}
}

func strPtr(s string) *string { return &s }

func TestValidateChain_DetectsBreak(t *testing.T) {
	e1 := genesis()
	e1.EventID = "evt_1"
	e2 := genesis()
	e2.Type = TypeObservation
	e2.EventID = "evt_2"
	e2.PrevEventHash = strPtr("evt_1")
	e3 := genesis()
	e3.Type = TypeObservation
	e3.EventID = "evt_3"
	e3.PrevEventHash = strPtr("not-evt-2")

	if err := ValidateChain("root", []*Event{e1, e2}); err != nil {
		t.Errorf("expected valid chain, got %v", err)
	}
	if err := ValidateChain("root", []*Event{e1, e2, e3}); err == nil {
		t.Error("expected broken chain to be detected")
	}
}

func TestForkGroups_DetectsSharedPrevHash(t *testing.T) {
	e1 := genesis()
	e1.EventID = "evt_1"
	e2 := genesis()
	e2.Type = TypeObservation
	e2.EventID = "evt_2a"
	e2.PrevEventHash = strPtr("evt_1")
	e3 := genesis()
	e3.Type = TypeObservation
	e3.EventID = "evt_2b"
	e3.PrevEventHash = strPtr("evt_1")

	forks := ForkGroups([]*Event{e1, e2, e3})
	groups, ok := forks["root"]
	if !ok || len(groups) != 1 || len(groups[0]) != 2 {
		t.Errorf("expected one fork group of 2 for actor root, got %+v", forks)
	}
}

func TestDuplicateEventIDs(t *testing.T) {
	e1 := genesis()
	e1.EventID = "evt_1"
	e2 := genesis()
	e2.EventID = "evt_1"
	dups := DuplicateEventIDs([]*Event{e1, e2})
	if len(dups) != 1 || dups[0] != "evt_1" {
		t.Errorf("expected duplicate evt_1, got %v", dups)
	}
}

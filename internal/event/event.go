// Package event defines the vault's event envelope: the wire/disk
// schema, content-addressed event-id derivation, and per-actor causal
// chain invariants. A single Event is signed and appended once; it is
// never mutated afterward except by tombstone redaction.
package event

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/provara-protocol/provara/internal/canonical"
)

// Core event types. All other types must use reverse-domain notation
// (e.g. "com.provara.redaction") and are validated only structurally.
const (
	TypeGenesis       = "GENESIS"
	TypeObservation   = "OBSERVATION"
	TypeAssertion     = "ASSERTION"
	TypeAttestation   = "ATTESTATION"
	TypeRetraction    = "RETRACTION"
	TypeKeyRevocation = "KEY_REVOCATION"
	TypeKeyPromotion  = "KEY_PROMOTION"
	TypeReducerEpoch  = "REDUCER_EPOCH"
)

// Namespace values.
const (
	NamespaceCanonical = "canonical"
	NamespaceLocal     = "local"
)

var coreTypes = map[string]bool{
	TypeGenesis:       true,
	TypeObservation:   true,
	TypeAssertion:     true,
	TypeAttestation:   true,
	TypeRetraction:    true,
	TypeKeyRevocation: true,
	TypeKeyPromotion:  true,
	TypeReducerEpoch:  true,
}

// IsCoreType reports whether t is one of the eight built-in types.
func IsCoreType(t string) bool { return coreTypes[t] }

// IsReverseDomain reports whether t looks like reverse-domain notation
// (contains at least one '.' and no whitespace).
func IsReverseDomain(t string) bool {
	return strings.Contains(t, ".") && !strings.ContainsAny(t, " \t\n")
}

// Event is the vault's envelope. Payload is kept as raw JSON so
// unregistered reverse-domain payloads round-trip byte-for-byte through
// canonicalization without a matching Go type.
type Event struct {
	EventID       string          `json:"event_id"`
	Type          string          `json:"type"`
	Namespace     string          `json:"namespace"`
	Actor         string          `json:"actor"`
	ActorKeyID    string          `json:"actor_key_id"`
	TsLogical     int64           `json:"ts_logical"`
	PrevEventHash *string         `json:"prev_event_hash"`
	TimestampUTC  string          `json:"timestamp_utc"`
	Payload       json.RawMessage `json:"payload"`
	Sig           string          `json:"sig"`
}

// canonicalMap marshals e to JSON then decodes into a map with
// json.Number preserved, so downstream canonicalization sees the exact
// numeric literal the struct held.
func canonicalMap(e *Event) (map[string]any, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// CanonicalBytesExcluding returns the canonical JSON bytes of e with the
// named top-level fields removed.
func CanonicalBytesExcluding(e *Event, exclude ...string) ([]byte, error) {
	m, err := canonicalMap(e)
	if err != nil {
		return nil, err
	}
	for _, k := range exclude {
		delete(m, k)
	}
	return canonical.Bytes(m)
}

// SigningBytes returns the canonical bytes signed by sign_event: the
// full event minus sig. event_id is part of the signed payload.
func SigningBytes(e *Event) ([]byte, error) {
	return CanonicalBytesExcluding(e, "sig")
}

// DeriveEventID computes event_id = "evt_" + lower_hex(SHA-256(canonical
// bytes of e minus {event_id, sig}))[:24].
func DeriveEventID(e *Event) (string, error) {
	b, err := CanonicalBytesExcluding(e, "event_id", "sig")
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "evt_" + hex.EncodeToString(sum[:])[:24], nil
}

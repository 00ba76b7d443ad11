// Package redaction implements key rotation and tombstone redaction:
// the two ways a vault's history can be amended without breaking the
// append-only log. Rotation replaces signing authority over time;
// redaction replaces a payload's content while preserving the event's
// chain position and id.
package redaction

import (
	"crypto/ed25519"
	"encoding/json"

	"github.com/provara-protocol/provara/internal/canonical"
	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/keyring"
	"github.com/provara-protocol/provara/internal/signing"
	"github.com/provara-protocol/provara/internal/verrors"
)

// RedactionType is the reverse-domain type recorded alongside every
// tombstone.
const RedactionType = "com.provara.redaction"

// SealType marks a vault immutable.
const SealType = "com.provara.vault.seal"

// DefaultMethod is used when a redaction request does not name one.
const DefaultMethod = "TOMBSTONE"

// Revoke builds and signs a KEY_REVOCATION event. Self-revocation (the
// revoked key signing its own revocation) is refused: a key that can
// revoke itself can also revoke any accusation against it, which
// defeats the point of revocation.
func Revoke(actor, revokerKeyID string, revokerPriv ed25519.PrivateKey, revokedKeyID string, tsLogical int64, prevEventID, nowUTC string) (*event.Event, error) {
	if revokerKeyID == revokedKeyID {
		return nil, verrors.Newf(verrors.CodeSelfRevocation, "key %s cannot sign its own revocation", revokedKeyID).WithSection("4.J")
	}
	payload, err := json.Marshal(map[string]string{"revoked_key_id": revokedKeyID})
	if err != nil {
		return nil, err
	}
	e := &event.Event{
		Type:          event.TypeKeyRevocation,
		Namespace:     event.NamespaceCanonical,
		Actor:         actor,
		TsLogical:     tsLogical,
		PrevEventHash: &prevEventID,
		TimestampUTC:  nowUTC,
		Payload:       payload,
	}
	return signing.SignEvent(e, revokerPriv, revokerKeyID)
}

// Promote builds and signs a KEY_PROMOTION event introducing a
// replacement key's public material.
func Promote(actor, signerKeyID string, signerPriv ed25519.PrivateKey, newKeyID, newPublicKeyB64, algorithm, replacesKeyID string, tsLogical int64, prevEventID, nowUTC string) (*event.Event, error) {
	payload, err := json.Marshal(map[string]string{
		"new_key_id":         newKeyID,
		"new_public_key_b64": newPublicKeyB64,
		"algorithm":          algorithm,
		"replaces_key_id":    replacesKeyID,
	})
	if err != nil {
		return nil, err
	}
	e := &event.Event{
		Type:          event.TypeKeyPromotion,
		Namespace:     event.NamespaceCanonical,
		Actor:         actor,
		TsLogical:     tsLogical,
		PrevEventHash: &prevEventID,
		TimestampUTC:  nowUTC,
		Payload:       payload,
	}
	return signing.SignEvent(e, signerPriv, signerKeyID)
}

// ApplyRevocation marks revoked_key_id revoked in keys. Called after a
// KEY_REVOCATION event has been committed to the log — the key
// registry is read-only at runtime otherwise.
func ApplyRevocation(keys *keyring.Registry, e *event.Event) error {
	var payload struct {
		RevokedKeyID string `json:"revoked_key_id"`
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return verrors.Wrap(verrors.CodeRequiredFieldMissing, "malformed KEY_REVOCATION payload", err).WithSection("4.J")
	}
	return keys.Revoke(payload.RevokedKeyID)
}

// ApplyPromotion adds the replacement key to keys. Called after a
// KEY_PROMOTION event has been committed to the log.
func ApplyPromotion(keys *keyring.Registry, e *event.Event) error {
	var payload struct {
		NewKeyID        string `json:"new_key_id"`
		NewPublicKeyB64 string `json:"new_public_key_b64"`
		Algorithm       string `json:"algorithm"`
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return verrors.Wrap(verrors.CodeRequiredFieldMissing, "malformed KEY_PROMOTION payload", err).WithSection("4.J")
	}
	keys.Put(keyring.Entry{
		KeyID:        payload.NewKeyID,
		Algorithm:    payload.Algorithm,
		PublicKeyB64: payload.NewPublicKeyB64,
		Status:       keyring.StatusActive,
		CreatedAtUTC: e.TimestampUTC,
	})
	return nil
}

// TombstonePayload replaces a redacted event's payload in place.
type TombstonePayload struct {
	Redacted            bool   `json:"redacted"`
	OriginalPayloadHash string `json:"original_payload_hash"`
	RedactionEventID    string `json:"redaction_event_id"`
}

// RecordPayload is the payload of the paired com.provara.redaction
// event that accompanies every tombstone.
type RecordPayload struct {
	TargetEventID string `json:"target_event_id"`
	Reason        string `json:"reason"`
	Authority     string `json:"authority"`
	Method        string `json:"method"`
	Timestamp     string `json:"timestamp"`
}

// IsTombstoned reports whether payload is a tombstone replacement
// rather than original content.
func IsTombstoned(payload json.RawMessage) bool {
	var probe struct {
		Redacted bool `json:"redacted"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Redacted
}

// Redact tombstones the event identified by targetEventID in place and
// returns the mutated target alongside a newly signed redaction
// record event. The target's event_id and sig fields are left
// untouched by definition — only Payload is replaced — so chain
// linkage to and from the target survives even though the target's own
// signature no longer verifies against its new payload; that breakage
// is intentional (§4.J) and Verify recognizes tombstones rather than
// failing on them.
//
// Redaction is idempotent: calling it again for an already-tombstoned
// target returns the existing tombstone and its original redaction
// record, unchanged, rather than minting a second one.
func Redact(events []*event.Event, targetEventID, reason, authority, method, actor, signerKeyID string, signerPriv ed25519.PrivateKey, tsLogical int64, prevEventID, nowUTC string) (tombstoned *event.Event, record *event.Event, err error) {
	var target *event.Event
	for _, e := range events {
		if e.EventID == targetEventID {
			target = e
			break
		}
	}
	if target == nil {
		return nil, nil, verrors.Newf(verrors.CodeHashMismatch, "redaction target %s not found in log", targetEventID).WithSection("4.J")
	}

	if IsTombstoned(target.Payload) {
		for _, e := range events {
			if e.Type != RedactionType {
				continue
			}
			var rp RecordPayload
			if json.Unmarshal(e.Payload, &rp) == nil && rp.TargetEventID == targetEventID {
				return target, e, nil
			}
		}
		return target, nil, nil
	}

	if method == "" {
		method = DefaultMethod
	}

	originalHash, err := canonical.Hash(target.Payload)
	if err != nil {
		return nil, nil, err
	}

	recordPayload, err := json.Marshal(RecordPayload{
		TargetEventID: targetEventID,
		Reason:        reason,
		Authority:     authority,
		Method:        method,
		Timestamp:     nowUTC,
	})
	if err != nil {
		return nil, nil, err
	}
	recordEvent := &event.Event{
		Type:          RedactionType,
		Namespace:     event.NamespaceCanonical,
		Actor:         actor,
		TsLogical:     tsLogical,
		PrevEventHash: &prevEventID,
		TimestampUTC:  nowUTC,
		Payload:       recordPayload,
	}
	if _, err := signing.SignEvent(recordEvent, signerPriv, signerKeyID); err != nil {
		return nil, nil, err
	}

	tombstonePayload, err := json.Marshal(TombstonePayload{
		Redacted:            true,
		OriginalPayloadHash: originalHash,
		RedactionEventID:    recordEvent.EventID,
	})
	if err != nil {
		return nil, nil, err
	}
	target.Payload = tombstonePayload

	return target, recordEvent, nil
}

// Seal builds and signs a com.provara.vault.seal event marking the
// vault immutable. Its payload carries only sealed_at_utc (nowUTC).
func Seal(actor, signerKeyID string, signerPriv ed25519.PrivateKey, tsLogical int64, prevEventID, nowUTC string) (*event.Event, error) {
	payload, err := json.Marshal(map[string]string{"sealed_at_utc": nowUTC})
	if err != nil {
		return nil, err
	}
	e := &event.Event{
		Type:          SealType,
		Namespace:     event.NamespaceCanonical,
		Actor:         actor,
		TsLogical:     tsLogical,
		PrevEventHash: &prevEventID,
		TimestampUTC:  nowUTC,
		Payload:       payload,
	}
	return signing.SignEvent(e, signerPriv, signerKeyID)
}

// IsSealed reports whether events contains a vault seal event.
func IsSealed(events []*event.Event) bool {
	for _, e := range events {
		if e.Type == SealType {
			return true
		}
	}
	return false
}

// SuccessorGenesisPayload builds the predecessor_vault linkage payload
// a successor vault's GENESIS event carries after this vault is
// sealed.
func SuccessorGenesisPayload(predecessorMerkleRoot string, finalEventCount int) map[string]any {
	return map[string]any{
		"predecessor_vault": map[string]any{
			"merkle_root":       predecessorMerkleRoot,
			"final_event_count": finalEventCount,
		},
	}
}

package event

import (
	"encoding/json"

	"github.com/provara-protocol/provara/internal/verrors"
)

// requiredPayloadFields lists the payload keys §4.D mandates per core
// type. Reverse-domain types are not schema-checked here.
var requiredPayloadFields = map[string][]string{
	TypeGenesis:       {"uid", "root_key_id", "birth_timestamp"},
	TypeObservation:   {"subject", "predicate"},
	TypeAssertion:     {"subject", "predicate"},
	TypeAttestation:   {"subject", "predicate", "value"},
	TypeKeyRevocation: {"revoked_key_id"},
	TypeKeyPromotion:  {"new_key_id", "new_public_key_b64", "algorithm", "replaces_key_id"},
	TypeReducerEpoch:  {"epoch_id", "reducer_hash"},
}

// ValidateStructure checks required envelope fields, namespace
// enumeration, and (for core types) the type-specific payload schema.
// It does not check signatures or chain linkage.
func ValidateStructure(e *Event) error {
	if e.Type == "" {
		return verrors.New(verrors.CodeRequiredFieldMissing, "event missing type").WithSection("3")
	}
	if !IsCoreType(e.Type) && !IsReverseDomain(e.Type) {
		return verrors.Newf(verrors.CodeRequiredFieldMissing, "type %q is neither a core type nor reverse-domain notation", e.Type).WithSection("3")
	}
	if e.Namespace != NamespaceCanonical && e.Namespace != NamespaceLocal {
		return verrors.Newf(verrors.CodeNamespaceMismatch, "namespace must be %q or %q, got %q", NamespaceCanonical, NamespaceLocal, e.Namespace).WithSection("3")
	}
	if e.Actor == "" {
		return verrors.New(verrors.CodeRequiredFieldMissing, "event missing actor").WithSection("3")
	}
	if e.ActorKeyID == "" {
		return verrors.New(verrors.CodeRequiredFieldMissing, "event missing actor_key_id").WithSection("3")
	}
	if e.Type != TypeGenesis && e.PrevEventHash == nil {
		return verrors.New(verrors.CodeRequiredFieldMissing, "non-genesis event missing prev_event_hash").
			WithSection("3").WithContext("type", e.Type)
	}

	fields, ok := requiredPayloadFields[e.Type]
	if !ok {
		return nil
	}
	if len(e.Payload) == 0 {
		return verrors.Newf(verrors.CodeRequiredFieldMissing, "event type %s requires a payload", e.Type).WithSection("6")
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return verrors.Wrap(verrors.CodeRequiredFieldMissing, "payload is not a JSON object", err).WithSection("6")
	}
	for _, field := range fields {
		if _, present := payload[field]; !present {
			return verrors.Newf(verrors.CodeRequiredFieldMissing, "event type %s missing payload field %q", e.Type, field).
				WithSection("6").WithContext("field", field)
		}
	}
	return nil
}

// ValidateBatch runs ValidateStructure over a slice and returns a
// report of rejected indices rather than failing fast, matching the
// batch-ingest propagation policy (§7): a batch succeeds with a
// rejected-events list as long as at least one event is accepted.
type Rejected struct {
	Index int
	Err   error
}

func ValidateBatch(events []*Event) (accepted []*Event, rejected []Rejected) {
	for i, e := range events {
		if err := ValidateStructure(e); err != nil {
			rejected = append(rejected, Rejected{Index: i, Err: err})
			continue
		}
		accepted = append(accepted, e)
	}
	return accepted, rejected
}

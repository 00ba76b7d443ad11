package reducer

import (
	"encoding/json"
	"reflect"

	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/verrors"
)

// DefaultAttestationThreshold is used when no policy overrides it.
const DefaultAttestationThreshold = 1

// Reducer folds events into State. AttestationThreshold is supplied by
// the caller through New (the CLI passes its --attestation-threshold
// flag); the vault's policies/safety_policy.json is not read.
type Reducer struct {
	AttestationThreshold int
}

// New builds a Reducer with the given attestation threshold. A
// non-positive threshold falls back to DefaultAttestationThreshold.
func New(attestationThreshold int) *Reducer {
	if attestationThreshold <= 0 {
		attestationThreshold = DefaultAttestationThreshold
	}
	return &Reducer{AttestationThreshold: attestationThreshold}
}

type subjectPredicatePayload struct {
	Subject    string `json:"subject"`
	Predicate  string `json:"predicate"`
	Value      any    `json:"value"`
	Confidence any    `json:"confidence,omitempty"`
}

func bucketKey(subject, predicate string) string { return subject + ":" + predicate }

// Apply folds a single event into state in place and recomputes
// state_hash. It returns state for convenient chaining.
func (r *Reducer) Apply(state *State, e *event.Event) (*State, error) {
	state.Metadata.EventCount++
	state.Metadata.LastEventID = e.EventID

	switch e.Type {
	case event.TypeGenesis:
		if err := r.applyGenesis(state, e); err != nil {
			return nil, err
		}
	case event.TypeObservation, event.TypeAssertion:
		if err := r.applyObservationLike(state, e); err != nil {
			return nil, err
		}
	case event.TypeAttestation:
		if err := r.applyAttestation(state, e); err != nil {
			return nil, err
		}
	case event.TypeRetraction:
		if err := r.applyRetraction(state, e); err != nil {
			return nil, err
		}
	case event.TypeKeyRevocation:
		if err := r.applyKeyLifecycle(state, e, "revoked_key_id"); err != nil {
			return nil, err
		}
	case event.TypeKeyPromotion:
		if err := r.applyKeyLifecycle(state, e, "new_key_id"); err != nil {
			return nil, err
		}
	case event.TypeReducerEpoch:
		if err := r.applyEpoch(state, e); err != nil {
			return nil, err
		}
	default:
		if state.Metadata.UnknownTypes == nil {
			state.Metadata.UnknownTypes = make(map[string]int)
		}
		state.Metadata.UnknownTypes[e.Type]++
	}

	if err := state.recomputeHash(); err != nil {
		return nil, verrors.Wrap(verrors.CodeHashFormat, "failed to recompute state_hash", err).WithSection("3")
	}
	return state, nil
}

// ApplyAll folds an ordered event sequence into state, returning the
// final state. Applying the same sequence to Empty() twice yields
// byte-identical state_hash.
func (r *Reducer) ApplyAll(state *State, events []*event.Event) (*State, error) {
	for _, e := range events {
		var err error
		state, err = r.Apply(state, e)
		if err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (r *Reducer) applyGenesis(state *State, e *event.Event) error {
	var payload struct {
		UID            string `json:"uid"`
		RootKeyID      string `json:"root_key_id"`
		BirthTimestamp string `json:"birth_timestamp"`
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return verrors.Wrap(verrors.CodeRequiredFieldMissing, "malformed GENESIS payload", err).WithSection("4.F")
	}
	state.Metadata.UID = payload.UID
	state.Metadata.GenesisEventID = e.EventID
	return nil
}

func (r *Reducer) applyObservationLike(state *State, e *event.Event) error {
	var payload subjectPredicatePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return verrors.Wrap(verrors.CodeRequiredFieldMissing, "malformed payload", err).WithSection("4.F")
	}
	key := bucketKey(payload.Subject, payload.Predicate)

	bucket := state.Local
	if e.Namespace == event.NamespaceCanonical {
		bucket = state.Canonical
	}

	newVal := &Value{
		Value:      payload.Value,
		Confidence: payload.Confidence,
		EventID:    e.EventID,
		Actor:      e.Actor,
		Ts:         e.TsLogical,
	}

	if existing, ok := bucket[key]; ok {
		state.Archived[key] = append(state.Archived[key], existing)
		if existing.Actor != e.Actor && !reflect.DeepEqual(existing.Value, newVal.Value) {
			state.Contested[key] = newVal
		} else {
			delete(state.Contested, key)
		}
	} else {
		delete(state.Contested, key)
	}
	bucket[key] = newVal
	return nil
}

func (r *Reducer) applyAttestation(state *State, e *event.Event) error {
	var payload subjectPredicatePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return verrors.Wrap(verrors.CodeRequiredFieldMissing, "malformed ATTESTATION payload", err).WithSection("4.F")
	}
	key := bucketKey(payload.Subject, payload.Predicate)

	target, bucketName := findValue(state, key)
	if target == nil {
		// Nothing to attest to yet; record the attestation as a new
		// local value so the counter has somewhere to live.
		target = &Value{
			Value:      payload.Value,
			EventID:    e.EventID,
			Actor:      e.Actor,
			Ts:         e.TsLogical,
		}
		state.Local[key] = target
		bucketName = "local"
	}
	target.Attestations++

	if bucketName != "canonical" && target.Attestations >= r.AttestationThreshold {
		promoteToCanonical(state, key, bucketName, target)
	}
	return nil
}

func findValue(state *State, key string) (*Value, string) {
	if v, ok := state.Canonical[key]; ok {
		return v, "canonical"
	}
	if v, ok := state.Contested[key]; ok {
		return v, "contested"
	}
	if v, ok := state.Local[key]; ok {
		return v, "local"
	}
	return nil, ""
}

func promoteToCanonical(state *State, key, fromBucket string, v *Value) {
	switch fromBucket {
	case "local":
		delete(state.Local, key)
	case "contested":
		delete(state.Contested, key)
	}
	state.Canonical[key] = v
}

func (r *Reducer) applyRetraction(state *State, e *event.Event) error {
	var payload subjectPredicatePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return verrors.Wrap(verrors.CodeRequiredFieldMissing, "malformed RETRACTION payload", err).WithSection("4.F")
	}
	key := bucketKey(payload.Subject, payload.Predicate)

	if v, ok := state.Canonical[key]; ok {
		state.Archived[key] = append(state.Archived[key], v)
		delete(state.Canonical, key)
	}
	if v, ok := state.Local[key]; ok {
		state.Archived[key] = append(state.Archived[key], v)
		delete(state.Local, key)
	}
	if v, ok := state.Contested[key]; ok {
		state.Archived[key] = append(state.Archived[key], v)
		delete(state.Contested, key)
	}
	return nil
}

func (r *Reducer) applyKeyLifecycle(state *State, e *event.Event, keyField string) error {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return verrors.Wrap(verrors.CodeRequiredFieldMissing, "malformed key lifecycle payload", err).WithSection("4.F")
	}
	var keyID string
	if raw, ok := payload[keyField]; ok {
		_ = json.Unmarshal(raw, &keyID)
	}
	state.Metadata.KeyLifecycle = append(state.Metadata.KeyLifecycle, KeyLifecycleEntry{
		EventID: e.EventID,
		Type:    e.Type,
		KeyID:   keyID,
		Ts:      e.TsLogical,
	})
	return nil
}

func (r *Reducer) applyEpoch(state *State, e *event.Event) error {
	var payload struct {
		EpochID     string `json:"epoch_id"`
		ReducerHash string `json:"reducer_hash"`
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return verrors.Wrap(verrors.CodeRequiredFieldMissing, "malformed REDUCER_EPOCH payload", err).WithSection("4.F")
	}
	state.Metadata.Epochs = append(state.Metadata.Epochs, EpochEntry{
		EventID:     e.EventID,
		EpochID:     payload.EpochID,
		ReducerHash: payload.ReducerHash,
	})
	return nil
}

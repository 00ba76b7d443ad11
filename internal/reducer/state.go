// Package reducer implements the deterministic fold of an event stream
// into namespaced state (§4.F). The same event sequence applied to an
// empty state on any platform yields a byte-identical state_hash.
package reducer

import (
	"github.com/provara-protocol/provara/internal/canonical"
)

// Value is one resolved observation/assertion/attestation slot.
type Value struct {
	Value        any    `json:"value"`
	Confidence   any    `json:"confidence,omitempty"`
	EventID      string `json:"event_id"`
	Actor        string `json:"actor"`
	Ts           int64  `json:"ts_logical"`
	Attestations int    `json:"attestations,omitempty"`
}

// KeyLifecycleEntry records a KEY_REVOCATION or KEY_PROMOTION without
// altering the payload buckets (§4.F rule 6).
type KeyLifecycleEntry struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	KeyID   string `json:"key_id"`
	Ts      int64  `json:"ts_logical"`
}

// EpochEntry records a REDUCER_EPOCH checkpoint assertion.
type EpochEntry struct {
	EventID     string `json:"event_id"`
	EpochID     string `json:"epoch_id"`
	ReducerHash string `json:"reducer_hash"`
}

// Metadata carries the reducer's bookkeeping fields (§3).
type Metadata struct {
	UID            string              `json:"uid,omitempty"`
	GenesisEventID string              `json:"genesis_event_id,omitempty"`
	EventCount     int                 `json:"event_count"`
	LastEventID    string              `json:"last_event_id,omitempty"`
	StateHash      string              `json:"state_hash"`
	KeyLifecycle   []KeyLifecycleEntry `json:"key_lifecycle,omitempty"`
	Epochs         []EpochEntry        `json:"epochs,omitempty"`
	UnknownTypes   map[string]int      `json:"unknown_types,omitempty"`
}

// State is the reducer's output: three resolved buckets, an archive of
// superseded values, and metadata including the recomputed state_hash.
type State struct {
	Canonical map[string]*Value   `json:"canonical"`
	Local     map[string]*Value   `json:"local"`
	Contested map[string]*Value   `json:"contested"`
	Archived  map[string][]*Value `json:"archived"`
	Metadata  Metadata            `json:"metadata"`
}

// Empty returns a fresh, zero-valued state ready to be folded into.
func Empty() *State {
	return &State{
		Canonical: make(map[string]*Value),
		Local:     make(map[string]*Value),
		Contested: make(map[string]*Value),
		Archived:  make(map[string][]*Value),
		Metadata:  Metadata{StateHash: ""},
	}
}

// recomputeHash serializes the state with state_hash cleared, hashes
// it, and writes the hex digest back into Metadata.StateHash.
func (s *State) recomputeHash() error {
	s.Metadata.StateHash = ""
	h, err := canonical.Hash(s)
	if err != nil {
		return err
	}
	s.Metadata.StateHash = h
	return nil
}

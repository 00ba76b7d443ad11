// Package checkpoint implements the streaming reducer: the same fold
// as internal/reducer, but pulling one NDJSON line at a time instead of
// materializing the whole log, and emitting a signed snapshot every N
// events so a later run can resume without replaying from genesis.
package checkpoint

import (
	"bufio"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"strings"

	"github.com/provara-protocol/provara/internal/canonical"
	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/reducer"
	"github.com/provara-protocol/provara/internal/signing"
	"github.com/provara-protocol/provara/internal/verrors"
)

// DefaultInterval emits a snapshot every this many events when the
// caller does not specify one.
const DefaultInterval = 1000

// Snapshot is the streaming reducer's progress marker: enough to
// resume folding from the middle of a log without re-deriving state
// from genesis.
type Snapshot struct {
	EventCount      int            `json:"event_count"`
	LastEventID     string         `json:"last_event_id"`
	LastEventOffset int64          `json:"last_event_offset"`
	ActorChainHeads map[string]string `json:"actor_chain_heads"`
	TypeCounts      map[string]int `json:"type_counts"`
	MerkleRoot      string         `json:"merkle_root,omitempty"`
	StateHash       string         `json:"state_hash"`
}

// Record is a Snapshot plus its detached Ed25519 signature, the unit
// written to checkpoints/*.chk.
type Record struct {
	Snapshot    Snapshot `json:"snapshot"`
	KeyID       string   `json:"key_id"`
	SignedAtUTC string   `json:"signed_at_utc"`
	Sig         string   `json:"sig"`
}

func (r *Record) unsignedBytes() ([]byte, error) {
	return canonical.Bytes(map[string]any{
		"snapshot":      r.Snapshot,
		"key_id":        r.KeyID,
		"signed_at_utc": r.SignedAtUTC,
	})
}

// Sign produces a signed Record for snap.
func Sign(snap Snapshot, keyID string, priv ed25519.PrivateKey, nowUTC string) (*Record, error) {
	r := &Record{Snapshot: snap, KeyID: keyID, SignedAtUTC: nowUTC}
	b, err := r.unsignedBytes()
	if err != nil {
		return nil, err
	}
	r.Sig = signing.Sign(priv, b)
	return r, nil
}

// VerifyRecord checks a checkpoint record's signature under pub.
func VerifyRecord(r *Record, pub ed25519.PublicKey) bool {
	b, err := r.unsignedBytes()
	if err != nil {
		return false
	}
	return signing.Verify(pub, b, r.Sig)
}

// WriteRecord writes r as canonical JSON to path (typically
// checkpoints/<event_count>.chk).
func WriteRecord(path string, r *Record) error {
	b, err := canonical.Bytes(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ReadRecord loads a checkpoint record from path.
func ReadRecord(path string) (*Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, verrors.Wrap(verrors.CodeVaultStructureInvalid, "malformed checkpoint record", err).WithSection("4.K")
	}
	return &r, nil
}

// Iterator folds one event log line at a time, tracking enough state
// to emit a Snapshot on demand without holding the whole log in
// memory. Peak memory is bounded by the reducer's State plus one
// scanner line buffer, not by log length.
type Iterator struct {
	f        *os.File
	scanner  *bufio.Scanner
	interval int

	reducer *reducer.Reducer
	state   *reducer.State

	offset          int64
	eventCount      int
	lastEventID     string
	actorChainHeads map[string]string
	typeCounts      map[string]int
}

// Open starts a fresh streaming reduction over the NDJSON log at path.
func Open(path string, r *reducer.Reducer, interval int) (*Iterator, error) {
	return open(path, r, interval, reducer.Empty(), 0, 0, "", nil, nil)
}

// Resume continues a streaming reduction from a prior checkpoint: it
// seeks to snap.LastEventOffset and carries state forward from it.
func Resume(path string, r *reducer.Reducer, interval int, snap Snapshot, state *reducer.State) (*Iterator, error) {
	return open(path, r, interval, state, snap.LastEventOffset, snap.EventCount, snap.LastEventID, snap.ActorChainHeads, snap.TypeCounts)
}

func open(path string, r *reducer.Reducer, interval int, state *reducer.State, startOffset int64, eventCount int, lastEventID string, chainHeads map[string]string, typeCounts map[string]int) (*Iterator, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if startOffset > 0 {
		if _, err := f.Seek(startOffset, 0); err != nil {
			f.Close()
			return nil, err
		}
	}
	if chainHeads == nil {
		chainHeads = make(map[string]string)
	}
	if typeCounts == nil {
		typeCounts = make(map[string]int)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Iterator{
		f:               f,
		scanner:         scanner,
		interval:        interval,
		reducer:         r,
		state:           state,
		offset:          startOffset,
		eventCount:      eventCount,
		lastEventID:     lastEventID,
		actorChainHeads: chainHeads,
		typeCounts:      typeCounts,
	}, nil
}

// Close releases the underlying file handle.
func (it *Iterator) Close() error { return it.f.Close() }

// Offset returns the byte offset up to which the log has been read.
func (it *Iterator) Offset() int64 { return it.offset }

// RebuildState replays path from the beginning up to (but not
// including) byteOffset, returning the folded state. A signed Snapshot
// only carries bookkeeping (counts, hashes, offsets), not the full
// canonical/local/contested buckets, so resuming in a new process
// requires re-deriving the buckets by replaying up to the checkpoint's
// offset before Resume can continue streaming from there.
func RebuildState(path string, r *reducer.Reducer, byteOffset int64) (*reducer.State, error) {
	it, err := Open(path, r, 1<<30)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	state := reducer.Empty()
	for it.Offset() < byteOffset {
		s, _, done, err := it.Next()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		state = s
	}
	return state, nil
}

// Next folds one more event from the log, returning the running state
// and, when the interval boundary is hit, a Snapshot (snapshot != nil
// only then). done is true once the log is exhausted; err is non-nil
// only on a read or fold failure.
func (it *Iterator) Next() (state *reducer.State, snap *Snapshot, done bool, err error) {
	if !it.scanner.Scan() {
		if serr := it.scanner.Err(); serr != nil {
			return nil, nil, false, serr
		}
		return it.state, nil, true, nil
	}

	line := it.scanner.Text()
	lineBytes := int64(len(line)) + 1 // + newline
	it.offset += lineBytes

	if strings.TrimSpace(line) == "" {
		return it.state, nil, false, nil
	}

	var e event.Event
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return nil, nil, false, verrors.Wrap(verrors.CodeVaultStructureInvalid, "malformed event in stream", err).WithSection("4.K")
	}

	it.state, err = it.reducer.Apply(it.state, &e)
	if err != nil {
		return nil, nil, false, err
	}
	it.eventCount++
	it.lastEventID = e.EventID
	it.actorChainHeads[e.Actor] = e.EventID
	it.typeCounts[e.Type]++

	if it.eventCount%it.interval == 0 {
		snap = &Snapshot{
			EventCount:      it.eventCount,
			LastEventID:     it.lastEventID,
			LastEventOffset: it.offset,
			ActorChainHeads: copyStringMap(it.actorChainHeads),
			TypeCounts:      copyIntMap(it.typeCounts),
			StateHash:       it.state.Metadata.StateHash,
		}
	}
	return it.state, snap, false, nil
}

func copyStringMap(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func copyIntMap(m map[string]int) map[string]int {
	cp := make(map[string]int, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/provara-protocol/provara/internal/canonical"
	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/reducer"
	"github.com/provara-protocol/provara/internal/signing"
)

func writeNDJSON(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "events.ndjson")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	prev := ""
	for i := 0; i < n; i++ {
		e := &event.Event{
			Type:         event.TypeObservation,
			Namespace:    event.NamespaceLocal,
			Actor:        "writer",
			ActorKeyID:   "bp1_0000000000000000",
			TsLogical:    int64(i),
			TimestampUTC: "2026-01-01T00:00:00Z",
			Payload:      []byte(fmt.Sprintf(`{"subject":"s%d","predicate":"p","value":"v"}`, i)),
		}
		if prev != "" {
			e.PrevEventHash = &prev
		}
		id, err := event.DeriveEventID(e)
		if err != nil {
			t.Fatalf("DeriveEventID: %v", err)
		}
		e.EventID = id
		prev = id

		b, err := canonical.Bytes(e)
		if err != nil {
			t.Fatalf("canonical.Bytes: %v", err)
		}
		if _, err := f.Write(append(b, '\n')); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return path
}

func TestIterator_EmitsSnapshotEveryInterval(t *testing.T) {
	path := writeNDJSON(t, 25)
	it, err := Open(path, reducer.New(reducer.DefaultAttestationThreshold), 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer it.Close()

	var snapshots []*Snapshot
	for {
		_, snap, done, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if done {
			break
		}
		if snap != nil {
			snapshots = append(snapshots, snap)
		}
	}

	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots (at 10 and 20), got %d", len(snapshots))
	}
	if snapshots[0].EventCount != 10 || snapshots[1].EventCount != 20 {
		t.Errorf("unexpected snapshot event counts: %+v", snapshots)
	}
}

func TestIterator_ResumeContinuesFromSnapshot(t *testing.T) {
	path := writeNDJSON(t, 20)

	it, err := Open(path, reducer.New(reducer.DefaultAttestationThreshold), 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var firstSnap *Snapshot
	var stateAtSnap *reducer.State
	for {
		state, snap, done, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if done {
			break
		}
		if snap != nil {
			firstSnap = snap
			stateAtSnap = state
			break
		}
	}
	it.Close()
	if firstSnap == nil {
		t.Fatal("expected a snapshot at event 10")
	}

	resumed, err := Resume(path, reducer.New(reducer.DefaultAttestationThreshold), 10, *firstSnap, stateAtSnap)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	defer resumed.Close()

	var finalState *reducer.State
	for {
		state, _, done, err := resumed.Next()
		if err != nil {
			t.Fatalf("resumed Next: %v", err)
		}
		if done {
			break
		}
		finalState = state
	}
	if finalState == nil {
		t.Fatal("expected resumed iterator to process remaining events")
	}
	if finalState.Metadata.EventCount != 20 {
		t.Errorf("expected resumed state to reach event_count 20, got %d", finalState.Metadata.EventCount)
	}
}

// TestIterator_MemoryBounded10kEvents pins the streaming reducer's
// whole reason for existing: heap growth while folding a 10k-event log
// must stay well under materializing the log, not just under some
// arbitrary ceiling. 50MB is generous headroom over the few hundred KB
// a bounded scanner buffer plus one State should actually cost.
func TestIterator_MemoryBounded10kEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping memory-bound test in short mode")
	}
	path := writeNDJSON(t, 10_000)

	var baseline runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&baseline)

	it, err := Open(path, reducer.New(reducer.DefaultAttestationThreshold), 500)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer it.Close()

	var peak uint64
	count := 0
	for {
		_, _, done, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if done {
			break
		}
		count++
		if count%1000 == 0 {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			if m.HeapAlloc > peak {
				peak = m.HeapAlloc
			}
		}
	}
	if count != 10_000 {
		t.Fatalf("expected to fold 10000 events, got %d", count)
	}

	if peak < baseline.HeapAlloc {
		peak = baseline.HeapAlloc
	}
	growthMB := float64(peak-baseline.HeapAlloc) / (1024 * 1024)
	const ceilingMB = 50.0
	if growthMB >= ceilingMB {
		t.Errorf("heap growth over 10k events was %.2fMB, want < %.2fMB", growthMB, ceilingMB)
	}
}

func TestRecord_SignAndVerifyRoundTrip(t *testing.T) {
	kp, err := signing.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	snap := Snapshot{EventCount: 10, LastEventID: "evt_abc", StateHash: "deadbeef"}
	rec, err := Sign(snap, kp.KeyID, kp.PrivateKey, "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !VerifyRecord(rec, kp.PublicKey) {
		t.Error("expected checkpoint record to verify")
	}

	rec.Snapshot.EventCount = 999
	if VerifyRecord(rec, kp.PublicKey) {
		t.Error("expected tampered checkpoint record to fail verification")
	}
}

func TestRecord_WriteAndReadRoundTrip(t *testing.T) {
	kp, err := signing.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	snap := Snapshot{EventCount: 5, LastEventID: "evt_xyz", StateHash: "cafebabe"}
	rec, err := Sign(snap, kp.KeyID, kp.PrivateKey, "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	path := filepath.Join(t.TempDir(), "5.chk")
	if err := WriteRecord(path, rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	loaded, err := ReadRecord(path)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if loaded.Snapshot.EventCount != 5 || loaded.Sig != rec.Sig {
		t.Errorf("round-tripped record mismatch: %+v", loaded)
	}

	var probe map[string]json.RawMessage
	raw, _ := os.ReadFile(path)
	if err := json.Unmarshal(raw, &probe); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if _, ok := probe["sig"]; !ok {
		t.Error("expected .chk file to carry a sig field")
	}
}

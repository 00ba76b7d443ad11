// Package sync implements delta-based multi-party synchronization:
// exporting/importing the causal tail of an event log, verifying
// incoming events, detecting causal forks, and merging in deterministic
// order. Conflicts are surfaced, never silently resolved.
package sync

import (
	"sort"

	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/keyring"
	"github.com/provara-protocol/provara/internal/reducer"
	"github.com/provara-protocol/provara/internal/signing"
	"github.com/provara-protocol/provara/internal/verrors"
)

// CausalFork records two or more events sharing (actor, prev_event_hash).
type CausalFork struct {
	ActorID           string   `json:"actor_id"`
	ForkPointEventID  string   `json:"fork_point_event_id"`
	CompetingEventIDs []string `json:"competing_event_ids"`
}

// Delta is a bundle of events plus the exporter's state vector at
// export time, used to reconcile two vaults without replaying the
// full log.
type Delta struct {
	SourceVector map[string]string `json:"source_vector"`
	Events       []*event.Event    `json:"events"`
	ManifestRoot string            `json:"manifest_root"`
}

// MergeResult is the outcome of merging a Delta into a local log.
type MergeResult struct {
	Success      bool         `json:"success"`
	EventsMerged int          `json:"events_merged"`
	NewStateHash string       `json:"new_state_hash"`
	Forks        []CausalFork `json:"forks"`
}

// StateVector scans events and returns, for every actor, the event_id
// of their last event in file order.
func StateVector(events []*event.Event) map[string]string {
	vec := make(map[string]string)
	for _, e := range events {
		vec[e.Actor] = e.EventID
	}
	return vec
}

// Export bundles every event strictly after sinceEventID (by file
// position) along with the exporter's full state vector. An empty
// sinceEventID exports the whole log.
func Export(events []*event.Event, sinceEventID, manifestRoot string) (*Delta, error) {
	tail := events
	if sinceEventID != "" {
		idx := -1
		for i, e := range events {
			if e.EventID == sinceEventID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, verrors.Newf(verrors.CodeHashMismatch, "since_event_id %s not found in log", sinceEventID).WithSection("4.I")
		}
		tail = events[idx+1:]
	}
	return &Delta{
		SourceVector: StateVector(events),
		Events:       append([]*event.Event(nil), tail...),
		ManifestRoot: manifestRoot,
	}, nil
}

// DetectForks scans events for the causal-fork condition.
func DetectForks(events []*event.Event) []CausalFork {
	groups := event.ForkGroups(events)
	var forks []CausalFork
	for actor, actorGroups := range groups {
		for _, group := range actorGroups {
			ids := make([]string, len(group))
			forkPoint := ""
			for i, e := range group {
				ids[i] = e.EventID
				if e.PrevEventHash != nil {
					forkPoint = *e.PrevEventHash
				}
			}
			forks = append(forks, CausalFork{ActorID: actor, ForkPointEventID: forkPoint, CompetingEventIDs: ids})
		}
	}
	return forks
}

type totalOrderKey struct {
	tsLogical    int64
	timestamp    string
	eventID      string
}

func sortKeyFor(e *event.Event) totalOrderKey {
	return totalOrderKey{tsLogical: e.TsLogical, timestamp: e.TimestampUTC, eventID: e.EventID}
}

func less(a, b totalOrderKey) bool {
	if a.tsLogical != b.tsLogical {
		return a.tsLogical < b.tsLogical
	}
	if a.timestamp != b.timestamp {
		return a.timestamp < b.timestamp
	}
	return a.eventID < b.eventID
}

// Import verifies each event in delta against localEvents' current
// chain heads and the key registry, rejecting duplicates and
// quarantining events that would fork a chain. Grafted events are
// returned sorted by the deterministic merge key
// (ts_logical, timestamp_utc, event_id).
func Import(localEvents []*event.Event, delta *Delta, keys *keyring.Registry) (grafted []*event.Event, forks []CausalFork, rejected []verrors.Error, err error) {
	localIDs := make(map[string]bool, len(localEvents))
	for _, e := range localEvents {
		localIDs[e.EventID] = true
	}
	chainHeads := make(map[string]string)
	for actor, chain := range event.BuildChains(localEvents) {
		if len(chain) > 0 {
			chainHeads[actor] = chain[len(chain)-1].EventID
		}
	}

	var candidates []*event.Event
	forkSeen := make(map[string]bool)

	for _, e := range delta.Events {
		if localIDs[e.EventID] {
			continue // duplicate, silently deduped
		}
		if verr := event.ValidateStructure(e); verr != nil {
			var ve *verrors.Error
			verrors.As(verr, &ve)
			rejected = append(rejected, *ve)
			continue
		}

		pub, resolveErr := keys.Resolve(e.ActorKeyID)
		if resolveErr != nil {
			pub, resolveErr = keys.ResolveHistorical(e.ActorKeyID)
		}
		if resolveErr != nil {
			var ve *verrors.Error
			verrors.As(resolveErr, &ve)
			rejected = append(rejected, *ve)
			continue
		}
		if verr := signing.VerifyEvent(e, pub); verr != nil {
			var ve *verrors.Error
			verrors.As(verr, &ve)
			rejected = append(rejected, *ve)
			continue
		}

		head, hasHead := chainHeads[e.Actor]
		wantsHead := e.PrevEventHash != nil && *e.PrevEventHash == head
		if hasHead && !wantsHead {
			if !forkSeen[e.Actor] {
				forkSeen[e.Actor] = true
				competing := []string{head, e.EventID}
				forkPoint := ""
				if e.PrevEventHash != nil {
					forkPoint = *e.PrevEventHash
				}
				forks = append(forks, CausalFork{ActorID: e.Actor, ForkPointEventID: forkPoint, CompetingEventIDs: competing})
			}
			continue
		}

		candidates = append(candidates, e)
		chainHeads[e.Actor] = e.EventID
		localIDs[e.EventID] = true
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return less(sortKeyFor(candidates[i]), sortKeyFor(candidates[j]))
	})

	return candidates, forks, rejected, nil
}

// Merge folds a Delta into localEvents and recomputes state, returning
// the merge result and the new combined event log in file order
// (locals first, then newly grafted events in deterministic order).
func Merge(localEvents []*event.Event, delta *Delta, keys *keyring.Registry, r *reducer.Reducer) (*MergeResult, []*event.Event, error) {
	grafted, forks, _, err := Import(localEvents, delta, keys)
	if err != nil {
		return nil, nil, err
	}

	merged := append(append([]*event.Event(nil), localEvents...), grafted...)

	state, err := r.ApplyAll(reducer.Empty(), merged)
	if err != nil {
		return nil, nil, err
	}

	return &MergeResult{
		Success:      true,
		EventsMerged: len(grafted),
		NewStateHash: state.Metadata.StateHash,
		Forks:        forks,
	}, merged, nil
}

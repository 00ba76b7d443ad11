package event

import (
	"github.com/provara-protocol/provara/internal/verrors"
)

// BuildChains groups events by actor, preserving file order within each
// actor's subsequence. It performs no validation; callers that need
// linkage checked call ValidateChain on the result.
func BuildChains(events []*Event) map[string][]*Event {
	chains := make(map[string][]*Event)
	for _, e := range events {
		chains[e.Actor] = append(chains[e.Actor], e)
	}
	return chains
}

// ValidateChain walks one actor's event subsequence (in file order) and
// checks the per-actor hash chain invariant: every event after the first
// has a prev_event_hash equal to the event_id of the immediately
// preceding event in the slice. The first event's prev_event_hash is not
// checked, so a head that is non-nil passes.
func ValidateChain(actor string, chain []*Event) error {
	// The head's prev_event_hash is not checked here: within a full
	// vault log the first event per actor has a nil prev_event_hash,
	// but a chain slice may also represent a delta grafted mid-log,
	// where the head legitimately points outside the slice.
	for i, e := range chain {
		if i == 0 {
			continue
		}
		prev := chain[i-1]
		if e.PrevEventHash == nil || *e.PrevEventHash != prev.EventID {
			return verrors.Newf(verrors.CodeBrokenCausalChain,
				"event %s does not chain from the preceding event %s for actor %s", e.EventID, prev.EventID, actor).
				WithSection("3").
				WithContext("actor", actor).
				WithContext("event_id", e.EventID)
		}
	}
	return nil
}

// ValidateAllChains runs ValidateChain over every actor's subsequence.
func ValidateAllChains(events []*Event) error {
	for actor, chain := range BuildChains(events) {
		if err := ValidateChain(actor, chain); err != nil {
			return err
		}
	}
	return nil
}

// DuplicateEventIDs scans events for repeated event_id values, a fatal
// condition per §4.D.
func DuplicateEventIDs(events []*Event) []string {
	seen := make(map[string]bool, len(events))
	var dups []string
	for _, e := range events {
		if seen[e.EventID] {
			dups = append(dups, e.EventID)
			continue
		}
		seen[e.EventID] = true
	}
	return dups
}

// ForkGroups finds sets of events that share (actor, prev_event_hash) —
// the causal-fork condition: no two distinct events may share that pair.
// The returned map is keyed by actor; each value lists the groups of
// 2+ competing events found for that actor.
func ForkGroups(events []*Event) map[string][][]*Event {
	type key struct {
		actor string
		prev  string
	}
	buckets := make(map[key][]*Event)
	for _, e := range events {
		prev := ""
		if e.PrevEventHash != nil {
			prev = *e.PrevEventHash
		}
		k := key{actor: e.Actor, prev: prev}
		buckets[k] = append(buckets[k], e)
	}

	result := make(map[string][][]*Event)
	for k, group := range buckets {
		if len(group) > 1 {
			result[k.actor] = append(result[k.actor], group)
		}
	}
	return result
}

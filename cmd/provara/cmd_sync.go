package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/keyring"
	"github.com/provara-protocol/provara/internal/reducer"
	"github.com/provara-protocol/provara/internal/sync"
	"github.com/provara-protocol/provara/internal/vault"
)

// doMerge loads vaultPath's keyring and local events, then merges
// delta into them, without writing anything back — the caller decides
// whether and how to persist the merged log.
func doMerge(vaultPath string, delta *sync.Delta) (*sync.MergeResult, []*event.Event, error) {
	keys, err := keyring.Load(filepath.Join(vaultPath, "identity/keys.json"))
	if err != nil {
		return nil, nil, err
	}
	local, err := vault.ReadEvents(filepath.Join(vaultPath, vault.EventsFile))
	if err != nil {
		return nil, nil, err
	}
	r := reducer.New(reducer.DefaultAttestationThreshold)
	result, merged, err := sync.Merge(local, delta, keys, r)
	if err != nil {
		return nil, nil, err
	}
	return result, merged, nil
}

// appendNewEvents writes the events in merged that come after the
// known prefix local to vaultPath's log. Merge always returns local's
// original events as a prefix followed by newly grafted ones.
func appendNewEvents(vaultPath string, local []*event.Event, merged []*event.Event) error {
	if len(merged) <= len(local) {
		return nil
	}
	w, err := vault.OpenWriter(filepath.Join(vaultPath, vault.EventsFile))
	if err != nil {
		return err
	}
	defer w.Close()
	for _, e := range merged[len(local):] {
		if err := w.Append(e); err != nil {
			return err
		}
	}
	return nil
}

func runSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 2 {
		return usageError("sync requires a local and a remote vault path")
	}
	localPath, remotePath := fs.Arg(0), fs.Arg(1)

	localEvents, err := vault.ReadEvents(filepath.Join(localPath, vault.EventsFile))
	if err != nil {
		return err
	}
	remoteEvents, err := vault.ReadEvents(filepath.Join(remotePath, vault.EventsFile))
	if err != nil {
		return err
	}

	// Pull: remote's tail the local side hasn't seen, merged into local.
	remoteDelta, err := sync.Export(remoteEvents, "", "")
	if err != nil {
		return err
	}
	result, merged, err := doMerge(localPath, remoteDelta)
	if err != nil {
		return err
	}
	if err := appendNewEvents(localPath, localEvents, merged); err != nil {
		return err
	}

	// Push: local's tail the remote side hasn't seen, merged into remote.
	localDelta, err := sync.Export(localEvents, "", "")
	if err != nil {
		return err
	}
	remoteResult, remoteMerged, err := doMerge(remotePath, localDelta)
	if err != nil {
		return err
	}
	if err := appendNewEvents(remotePath, remoteEvents, remoteMerged); err != nil {
		return err
	}

	fmt.Printf("sync complete\n")
	fmt.Printf("  local <- remote: %d event(s) merged, state hash %s\n", result.EventsMerged, result.NewStateHash)
	fmt.Printf("  remote <- local: %d event(s) merged, state hash %s\n", remoteResult.EventsMerged, remoteResult.NewStateHash)
	allForks := append(append([]sync.CausalFork{}, result.Forks...), remoteResult.Forks...)
	if len(allForks) > 0 {
		fmt.Printf("forks detected: %d\n", len(allForks))
		for _, f := range allForks {
			fmt.Printf("  actor %s fork point %s: %s\n", f.ActorID, f.ForkPointEventID, strings.Join(f.CompetingEventIDs, ", "))
		}
	}
	return nil
}

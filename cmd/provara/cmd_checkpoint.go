package main

import (
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/provara-protocol/provara/internal/checkpoint"
	"github.com/provara-protocol/provara/internal/reducer"
	"github.com/provara-protocol/provara/internal/vault"
)

const checkpointsDir = "checkpoints"

func runCheckpoint(args []string) error {
	fs := flag.NewFlagSet("checkpoint", flag.ContinueOnError)
	interval := fs.Int("interval", checkpoint.DefaultInterval, "events between snapshots")
	threshold := fs.Int("attestation-threshold", reducer.DefaultAttestationThreshold, "required ATTESTATION count before promotion to canonical")
	keyfile := fs.String("keyfile", "", "path to a private-keys file used to sign snapshots")
	keyID := fs.String("key-id", "", "key id within --keyfile to sign with")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 1 {
		return usageError("checkpoint requires a vault path")
	}
	path := fs.Arg(0)

	var priv ed25519.PrivateKey
	var signerKeyID string
	if *keyfile != "" {
		var err error
		priv, err = loadPrivateKey(*keyfile, *keyID)
		if err != nil {
			return err
		}
		signerKeyID = *keyID
	}

	eventsPath := filepath.Join(path, vault.EventsFile)
	it, err := checkpoint.Open(eventsPath, reducer.New(*threshold), *interval)
	if err != nil {
		return err
	}
	defer it.Close()

	chkDir := filepath.Join(path, checkpointsDir)
	if err := os.MkdirAll(chkDir, 0o755); err != nil {
		return err
	}

	count := 0
	for {
		_, snap, done, err := it.Next()
		if err != nil {
			return err
		}
		if done {
			break
		}
		if snap == nil {
			continue
		}
		count++
		if priv == nil {
			continue
		}
		rec, err := checkpoint.Sign(*snap, signerKeyID, priv, nowRFC3339())
		if err != nil {
			return err
		}
		chkPath := filepath.Join(chkDir, fmt.Sprintf("%d.chk", snap.EventCount))
		if err := checkpoint.WriteRecord(chkPath, rec); err != nil {
			return err
		}
	}

	fmt.Printf("processed log, emitted %d snapshot(s)\n", count)
	return nil
}

func runResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	threshold := fs.Int("attestation-threshold", reducer.DefaultAttestationThreshold, "required ATTESTATION count before promotion to canonical")
	interval := fs.Int("interval", checkpoint.DefaultInterval, "events between snapshots")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 1 {
		return usageError("resume requires a vault path")
	}
	path := fs.Arg(0)

	chkDir := filepath.Join(path, checkpointsDir)
	latest, err := latestCheckpoint(chkDir)
	if err != nil {
		return err
	}
	eventsPath := filepath.Join(path, vault.EventsFile)
	r := reducer.New(*threshold)

	var it *checkpoint.Iterator
	if latest == nil {
		it, err = checkpoint.Open(eventsPath, r, *interval)
	} else {
		state, rebuildErr := checkpoint.RebuildState(eventsPath, r, latest.Snapshot.LastEventOffset)
		if rebuildErr != nil {
			return rebuildErr
		}
		it, err = checkpoint.Resume(eventsPath, r, *interval, latest.Snapshot, state)
	}
	if err != nil {
		return err
	}
	defer it.Close()

	var final *reducer.State
	for {
		state, _, done, err := it.Next()
		if err != nil {
			return err
		}
		if done {
			break
		}
		final = state
	}
	if final == nil {
		fmt.Println("no events remaining after the last checkpoint")
		return nil
	}
	fmt.Printf("resumed to event_count=%d state_hash=%s\n", final.Metadata.EventCount, final.Metadata.StateHash)
	return nil
}

func latestCheckpoint(chkDir string) (*checkpoint.Record, error) {
	entries, err := os.ReadDir(chkDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var counts []int
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".chk") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(e.Name(), ".chk"))
		if err != nil {
			continue
		}
		counts = append(counts, n)
	}
	if len(counts) == 0 {
		return nil, nil
	}
	sort.Ints(counts)
	return checkpoint.ReadRecord(filepath.Join(chkDir, fmt.Sprintf("%d.chk", counts[len(counts)-1])))
}

package main

import (
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/provara-protocol/provara/internal/canonical"
	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/redaction"
	"github.com/provara-protocol/provara/internal/signing"
	"github.com/provara-protocol/provara/internal/vault"
)

func runRedact(args []string) error {
	fs := flag.NewFlagSet("redact", flag.ContinueOnError)
	target := fs.String("target", "", "event_id to redact")
	reason := fs.String("reason", "", "reason for redaction")
	authority := fs.String("authority", "", "authority ordering the redaction")
	method := fs.String("method", redaction.DefaultMethod, "redaction method")
	actor := fs.String("actor", "redactor", "actor id for the paired redaction record")
	keyfile := fs.String("keyfile", "", "path to a private-keys file")
	keyID := fs.String("key-id", "", "key id within --keyfile to sign with")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 1 {
		return usageError("redact requires a vault path")
	}
	if *target == "" || *reason == "" || *authority == "" || *keyfile == "" {
		return usageError("redact requires --target, --reason, --authority, and --keyfile")
	}
	path := fs.Arg(0)

	priv, err := loadPrivateKey(*keyfile, *keyID)
	if err != nil {
		return err
	}
	signerKeyID := *keyID
	if signerKeyID == "" {
		signerKeyID = signing.KeyIDFromPublicKey(priv.Public().(ed25519.PublicKey))
	}

	eventsPath := filepath.Join(path, vault.EventsFile)
	events, err := vault.ReadEvents(eventsPath)
	if err != nil {
		return err
	}

	priorRecordIDs := make(map[string]bool, len(events))
	for _, e := range events {
		priorRecordIDs[e.EventID] = true
	}

	var prev *string
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Actor == *actor {
			id := events[i].EventID
			prev = &id
			break
		}
	}
	prevID := ""
	if prev != nil {
		prevID = *prev
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, record, err := redaction.Redact(events, *target, *reason, *authority, *method, *actor, signerKeyID, priv, int64(len(events)), prevID, now)
	if err != nil {
		return err
	}

	if priorRecordIDs[record.EventID] {
		fmt.Printf("%s is already redacted, recorded as %s\n", *target, record.EventID)
		return nil
	}

	events = append(events, record)
	if err := rewriteEventsFile(eventsPath, events); err != nil {
		return err
	}

	manifest, err := vault.BuildManifest(path)
	if err != nil {
		return err
	}
	merkleRoot, err := manifest.MerkleRoot()
	if err != nil {
		return err
	}
	if err := vault.WriteManifestArtifacts(path, manifest, merkleRoot); err != nil {
		return err
	}

	fmt.Printf("redacted %s, recorded as %s\n", *target, record.EventID)
	return nil
}

// rewriteEventsFile atomically replaces the events log's contents,
// used only by redact (which mutates an earlier line's payload) —
// every other writer appends via vault.OpenWriter.
func rewriteEventsFile(path string, events []*event.Event) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".provara-redact-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	for _, e := range events {
		b, err := canonical.Bytes(e)
		if err != nil {
			tmp.Close()
			return err
		}
		if _, err := tmp.Write(append(b, '\n')); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

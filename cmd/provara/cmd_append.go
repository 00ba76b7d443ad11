package main

import (
	"crypto/ed25519"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/signing"
	"github.com/provara-protocol/provara/internal/vault"
)

func runAppend(args []string) error {
	fs := flag.NewFlagSet("append", flag.ContinueOnError)
	typ := fs.String("type", "", "event type (core type or reverse-domain)")
	data := fs.String("data", "", "payload JSON, or @FILE to read it from a file")
	actor := fs.String("actor", "root", "actor id")
	keyfile := fs.String("keyfile", "", "path to a private-keys file written by init")
	keyID := fs.String("key-id", "", "key id within --keyfile to sign with")
	confidence := fs.Float64("confidence", 0, "optional confidence value merged into the payload")
	namespace := fs.String("namespace", event.NamespaceLocal, "canonical or local")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 1 {
		return usageError("append requires a vault path")
	}
	if *typ == "" {
		return usageError("append requires --type")
	}
	if *data == "" {
		return usageError("append requires --data")
	}
	if *keyfile == "" {
		return usageError("append requires --keyfile")
	}
	path := fs.Arg(0)

	payload, err := readPayload(*data)
	if err != nil {
		return err
	}
	confidenceSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "confidence" {
			confidenceSet = true
		}
	})
	if confidenceSet {
		payload, err = mergeConfidence(payload, *confidence)
		if err != nil {
			return err
		}
	}

	priv, err := loadPrivateKey(*keyfile, *keyID)
	if err != nil {
		return err
	}
	signerKeyID := *keyID
	if signerKeyID == "" {
		signerKeyID = signing.KeyIDFromPublicKey(priv.Public().(ed25519.PublicKey))
	}

	eventsPath := filepath.Join(path, vault.EventsFile)
	existing, err := vault.ReadEvents(eventsPath)
	if err != nil {
		return err
	}

	var prev *string
	for i := len(existing) - 1; i >= 0; i-- {
		if existing[i].Actor == *actor {
			id := existing[i].EventID
			prev = &id
			break
		}
	}

	e := &event.Event{
		Type:          *typ,
		Namespace:     *namespace,
		Actor:         *actor,
		TsLogical:     int64(len(existing)),
		PrevEventHash: prev,
		TimestampUTC:  time.Now().UTC().Format(time.RFC3339),
		Payload:       payload,
	}
	if _, err := signing.SignEvent(e, priv, signerKeyID); err != nil {
		return err
	}

	w, err := vault.OpenWriter(eventsPath)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Append(e); err != nil {
		return err
	}

	fmt.Printf("appended %s (%s) for actor %s\n", e.EventID, e.Type, e.Actor)
	return nil
}

func readPayload(data string) (json.RawMessage, error) {
	if strings.HasPrefix(data, "@") {
		raw, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, usageError(fmt.Sprintf("reading --data file: %v", err))
		}
		return json.RawMessage(raw), nil
	}
	if !json.Valid([]byte(data)) {
		return nil, usageError("--data is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func mergeConfidence(payload json.RawMessage, confidence float64) (json.RawMessage, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, usageError("--confidence requires a JSON object payload")
	}
	m["confidence"] = confidence
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

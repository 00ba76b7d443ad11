package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/provara-protocol/provara/internal/canonical"
	"github.com/provara-protocol/provara/internal/reducer"
	"github.com/provara-protocol/provara/internal/vault"
)

func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	threshold := fs.Int("attestation-threshold", reducer.DefaultAttestationThreshold, "required ATTESTATION count before promotion to canonical")
	pretty := fs.Bool("json", true, "print full state as JSON")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 1 {
		return usageError("replay requires a vault path")
	}
	path := fs.Arg(0)

	events, err := vault.ReadEvents(filepath.Join(path, vault.EventsFile))
	if err != nil {
		return err
	}

	r := reducer.New(*threshold)
	state, err := r.ApplyAll(reducer.Empty(), events)
	if err != nil {
		return err
	}

	fmt.Printf("events processed: %d\n", state.Metadata.EventCount)
	fmt.Printf("state hash: %s\n", state.Metadata.StateHash)
	fmt.Printf("canonical: %d  local: %d  contested: %d\n", len(state.Canonical), len(state.Local), len(state.Contested))

	if *pretty {
		b, err := canonical.Bytes(state)
		if err != nil {
			return err
		}
		var indented map[string]any
		if err := json.Unmarshal(b, &indented); err != nil {
			return err
		}
		out, err := json.MarshalIndent(indented, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}

package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/provara-protocol/provara/internal/canonical"
	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/sync"
	"github.com/provara-protocol/provara/internal/vault"
	"github.com/provara-protocol/provara/internal/verrors"
)

// deltaHeader is the bundle's leading line: the state vector and the
// exporter's manifest root, ahead of one NDJSON event per line.
type deltaHeader struct {
	SourceVector map[string]string `json:"source_vector"`
	ManifestRoot string            `json:"manifest_root"`
}

func writeDeltaBundle(w *os.File, d *sync.Delta) error {
	headerBytes, err := canonical.Bytes(deltaHeader{SourceVector: d.SourceVector, ManifestRoot: d.ManifestRoot})
	if err != nil {
		return err
	}
	if _, err := w.Write(append(headerBytes, '\n')); err != nil {
		return err
	}
	for _, e := range d.Events {
		b, err := canonical.Bytes(e)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func readDeltaBundle(path string) (*sync.Delta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, usageError(fmt.Sprintf("opening delta file: %v", err))
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, verrors.New(verrors.CodeVaultStructureInvalid, "empty delta bundle").WithSection("4.I")
	}
	var header deltaHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, verrors.Wrap(verrors.CodeVaultStructureInvalid, "malformed delta header", err).WithSection("4.I")
	}

	var events []*event.Event
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e event.Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, verrors.Wrap(verrors.CodeVaultStructureInvalid, "malformed delta event", err).WithSection("4.I")
		}
		events = append(events, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &sync.Delta{SourceVector: header.SourceVector, Events: events, ManifestRoot: header.ManifestRoot}, nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	output := fs.String("output", "", "delta bundle output path")
	since := fs.String("since", "", "export only events after this event_id")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 1 {
		return usageError("export requires a vault path")
	}
	if *output == "" {
		return usageError("export requires --output")
	}
	path := fs.Arg(0)

	events, err := vault.ReadEvents(filepath.Join(path, vault.EventsFile))
	if err != nil {
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

	delta, err := sync.Export(events, *since, merkleRoot)
	if err != nil {
		return err
	}

	out, err := os.Create(*output)
	if err != nil {
		return usageError(fmt.Sprintf("creating --output file: %v", err))
	}
	defer out.Close()
	if err := writeDeltaBundle(out, delta); err != nil {
		return err
	}

	fmt.Printf("exported %d event(s) to %s\n", len(delta.Events), *output)
	return nil
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	deltaPath := fs.String("delta", "", "delta bundle to import")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 1 {
		return usageError("import requires a vault path")
	}
	if *deltaPath == "" {
		return usageError("import requires --delta")
	}
	path := fs.Arg(0)

	delta, err := readDeltaBundle(*deltaPath)
	if err != nil {
		return err
	}

	local, err := vault.ReadEvents(filepath.Join(path, vault.EventsFile))
	if err != nil {
		return err
	}
	result, merged, err := doMerge(path, delta)
	if err != nil {
		return err
	}
	if err := appendNewEvents(path, local, merged); err != nil {
		return err
	}

	fmt.Printf("imported %d event(s), new state hash %s\n", result.EventsMerged, result.NewStateHash)
	if len(result.Forks) > 0 {
		fmt.Printf("forks detected: %d (not merged, surfaced for review)\n", len(result.Forks))
		for _, f := range result.Forks {
			fmt.Printf("  actor %s fork point %s: %s\n", f.ActorID, f.ForkPointEventID, strings.Join(f.CompetingEventIDs, ", "))
		}
	}
	return nil
}

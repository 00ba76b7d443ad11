// Command provara is the sovereign event vault's CLI: init, append,
// verify, replay, sync, export/import, redact, backup, checkpoint,
// and resume, each dispatched from os.Args[1] to its own flag.FlagSet.
package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/provara-protocol/provara/internal/verrors"
)

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

const (
	exitOK     = 0
	exitFail   = 1
	exitUsage  = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsage)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = runInit(args)
	case "append":
		err = runAppend(args)
	case "verify":
		err = runVerify(args)
	case "replay":
		err = runReplay(args)
	case "sync":
		err = runSync(args)
	case "export":
		err = runExport(args)
	case "import":
		err = runImport(args)
	case "redact":
		err = runRedact(args)
	case "backup":
		err = runBackup(args)
	case "checkpoint":
		err = runCheckpoint(args)
	case "resume":
		err = runResume(args)
	case "-h", "--help", "help":
		printUsage()
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "provara: unknown command %q\n", cmd)
		printUsage()
		os.Exit(exitUsage)
	}

	os.Exit(handleErr(err))
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: provara <command> [args]

commands:
  init <path> [--uid U] [--actor A] [--quorum] [--private-keys FILE]
  append <path> --type T --data @FILE|JSON [--actor A] [--keyfile F] [--key-id K] [--confidence C]
  verify <path> [--verbose] [--show-redacted] [--ci] [--summary-out FILE]
  replay <path> [--json]
  sync <local> <remote>
  export <path> --output F [--since HASH]
  import <path> --delta F
  redact <path> --target EID --reason R --authority A [--method TOMBSTONE] --keyfile F --key-id K
  backup <path> --to DIR [--keep N]
  checkpoint <path>
  resume <path>`)
}

// handleErr converts err into the spec's exit code, writing a
// structured JSON error line to stderr for anything that carries a
// *verrors.Error. A plain usage error (bad flags, missing file) and a
// *verrors.Error with code VAULT_STRUCTURE_INVALID or PATH_UNSAFE map
// to exit 2; everything else maps to exit 1.
func handleErr(err error) int {
	if err == nil {
		return exitOK
	}
	var ve *verrors.Error
	if verrors.As(err, &ve) {
		emitErrorJSON(ve)
		if ve.Code == verrors.CodeVaultStructureInvalid || ve.Code == verrors.CodePathUnsafe {
			return exitUsage
		}
		return exitFail
	}
	if ue, ok := err.(usageError); ok {
		fmt.Fprintln(os.Stderr, "provara: "+string(ue))
		return exitUsage
	}
	fmt.Fprintln(os.Stderr, "provara: "+err.Error())
	return exitFail
}

func emitErrorJSON(e *verrors.Error) {
	b, marshalErr := json.Marshal(e)
	if marshalErr != nil {
		fmt.Fprintln(os.Stderr, e.Error())
		return
	}
	fmt.Fprintln(os.Stderr, string(b))
}

// usageError signals a CLI-level problem (bad flags, missing
// arguments) distinct from a vault-domain *verrors.Error.
type usageError string

func (u usageError) Error() string { return string(u) }

// privateKeyFile is the out-of-band JSON shape init/append/redact read
// and write private key material in. The vault itself never stores
// these.
type privateKeyFile struct {
	Keys []privateKeyEntry `json:"keys"`
}

type privateKeyEntry struct {
	KeyID         string `json:"key_id"`
	Role          string `json:"role,omitempty"`
	PrivateKeyB64 string `json:"private_key_b64"`
}

func writePrivateKeys(path string, entries []privateKeyEntry) error {
	b, err := json.MarshalIndent(privateKeyFile{Keys: entries}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func loadPrivateKey(path, keyID string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, usageError(fmt.Sprintf("reading keyfile %s: %v", path, err))
	}
	var f privateKeyFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, usageError(fmt.Sprintf("parsing keyfile %s: %v", path, err))
	}
	for _, entry := range f.Keys {
		if keyID == "" || entry.KeyID == keyID {
			return decodeB64Key(entry.PrivateKeyB64)
		}
	}
	return nil, usageError(fmt.Sprintf("key_id %q not found in %s", keyID, path))
}

func decodeB64Key(b64 string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, usageError("malformed base64 private key")
	}
	return ed25519.PrivateKey(raw), nil
}

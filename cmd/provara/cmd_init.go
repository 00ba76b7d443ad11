package main

import (
	"flag"
	"fmt"

	"github.com/provara-protocol/provara/internal/vault"
)

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	uid := fs.String("uid", "", "vault UID recorded in identity/genesis.json")
	actor := fs.String("actor", "root", "actor id for the GENESIS and seed events")
	quorum := fs.Bool("quorum", false, "also generate a quorum keypair for later rotation")
	privateKeysOut := fs.String("private-keys", "", "path to write generated private keys (default: <path>/../my_private_keys.json)")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() < 1 {
		return usageError("init requires a vault path")
	}
	path := fs.Arg(0)

	result, err := vault.Bootstrap(path, vault.BootstrapOptions{
		UID:    *uid,
		Actor:  *actor,
		Quorum: *quorum,
	})
	if err != nil {
		return err
	}

	entries := []privateKeyEntry{{KeyID: result.RootKeyID, Role: "root", PrivateKeyB64: result.RootPrivateKeyB64}}
	if result.QuorumKeyID != "" {
		entries = append(entries, privateKeyEntry{KeyID: result.QuorumKeyID, Role: "quorum", PrivateKeyB64: result.QuorumPrivateKeyB64})
	}
	out := *privateKeysOut
	if out == "" {
		out = path + "/../my_private_keys.json"
	}
	if err := writePrivateKeys(out, entries); err != nil {
		return err
	}

	fmt.Printf("vault created at %s\n", path)
	fmt.Printf("  uid: %s\n", result.UID)
	fmt.Printf("  root key: %s\n", result.RootKeyID)
	if result.QuorumKeyID != "" {
		fmt.Printf("  quorum key: %s\n", result.QuorumKeyID)
	}
	fmt.Printf("  private keys written to: %s (store them securely, they are never kept in the vault)\n", out)
	return nil
}

package vault

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/keyring"
	"github.com/provara-protocol/provara/internal/signing"
)

// BootstrapOptions configures vault creation.
type BootstrapOptions struct {
	UID    string
	Actor  string
	Quorum bool // also generate a quorum keypair for later rotation
}

// BootstrapResult carries the out-of-band private key material the
// caller must persist; the vault itself never stores private keys.
type BootstrapResult struct {
	UID                 string
	RootKeyID           string
	RootPrivateKeyB64   string
	QuorumKeyID         string
	QuorumPrivateKeyB64 string
}

var policyTemplates = map[string][]byte{
	"policies/sync_contract.json": []byte(`{"authorities":[],"merge_strategy":"causal"}`),
	"policies/safety_policy.json": []byte(`{"action_classes":{"L0":{"approval":1,"description":"routine"},"L1":{"approval":1,"description":"elevated"},"L2":{"approval":2,"description":"sensitive"},"L3":{"approval":3,"description":"critical"}}}`),
	"policies/retention_policy.json": []byte(`{"default_retention_days":0}`),
}

// Bootstrap creates a compliant vault at path, which must not already
// exist or must be empty. It builds into a temporary staging directory
// and renames into place only once every step succeeds; on any error
// the staging directory is removed and the caller's target path is
// left untouched.
func Bootstrap(path string, opts BootstrapOptions) (*BootstrapResult, error) {
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("vault: %s exists and is not a directory", path)
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return nil, fmt.Errorf("vault: %s is not empty, refusing to bootstrap", path)
		}
	}

	stagingParent := filepath.Dir(path)
	staging, err := os.MkdirTemp(stagingParent, ".provara-bootstrap-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	result, err := bootstrapInto(staging, opts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(stagingParent, 0o755); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, err
	}
	if err := os.Rename(staging, path); err != nil {
		return nil, err
	}

	report, err := Verify(path, VerifyOptions{})
	if err == nil && !report.OK {
		err = fmt.Errorf("%d integrity check(s) failed", len(report.Failures))
	}
	if err != nil {
		os.RemoveAll(path)
		return nil, fmt.Errorf("vault: post-bootstrap self-test failed: %w", err)
	}
	return result, nil
}

func bootstrapInto(root string, opts BootstrapOptions) (*BootstrapResult, error) {
	for _, dir := range []string{"identity", "events", "policies", "state", "checkpoints", ".index"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, err
		}
	}

	rootKP, err := signing.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	result := &BootstrapResult{
		RootKeyID:         rootKP.KeyID,
		RootPrivateKeyB64: b64(rootKP.PrivateKey),
	}

	keys := keyring.New()
	now := time.Now().UTC().Format(time.RFC3339)
	keys.Put(keyring.Entry{
		KeyID:        rootKP.KeyID,
		Algorithm:    "Ed25519",
		PublicKeyB64: rootKP.PublicKeyB64,
		Roles:        []string{"root"},
		Status:       keyring.StatusActive,
		CreatedAtUTC: now,
	})

	var quorumKP *signing.Keypair
	if opts.Quorum {
		quorumKP, err = signing.GenerateKeypair()
		if err != nil {
			return nil, err
		}
		result.QuorumKeyID = quorumKP.KeyID
		result.QuorumPrivateKeyB64 = b64(quorumKP.PrivateKey)
		keys.Put(keyring.Entry{
			KeyID:        quorumKP.KeyID,
			Algorithm:    "Ed25519",
			PublicKeyB64: quorumKP.PublicKeyB64,
			Roles:        []string{"quorum"},
			Status:       keyring.StatusActive,
			CreatedAtUTC: now,
		})
	}

	keysRaw, err := keys.Marshal()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(root, "identity/keys.json"), keysRaw, 0o644); err != nil {
		return nil, err
	}

	uid := opts.UID
	if uid == "" {
		uid = uuid.NewString()
	}
	result.UID = uid

	genesisDoc := map[string]any{
		"uid":             uid,
		"root_key_id":     rootKP.KeyID,
		"birth_timestamp": now,
		"spec_version":    SpecVersion,
	}
	genesisDocRaw, err := json.Marshal(genesisDoc)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(root, "identity/genesis.json"), genesisDocRaw, 0o644); err != nil {
		return nil, err
	}

	for rel, contents := range policyTemplates {
		if err := os.WriteFile(filepath.Join(root, rel), contents, 0o644); err != nil {
			return nil, err
		}
	}

	actor := opts.Actor
	if actor == "" {
		actor = "root"
	}

	genesisEvent := &event.Event{
		Type:         event.TypeGenesis,
		Namespace:    event.NamespaceCanonical,
		Actor:        actor,
		TsLogical:    0,
		TimestampUTC: now,
		Payload:      genesisDocRaw,
	}
	if _, err := signing.SignEvent(genesisEvent, rootKP.PrivateKey, rootKP.KeyID); err != nil {
		return nil, err
	}

	seedPayload, err := json.Marshal(map[string]any{"subject": "system", "predicate": "status", "value": "initialized"})
	if err != nil {
		return nil, err
	}
	genesisID := genesisEvent.EventID
	seedEvent := &event.Event{
		Type:          event.TypeObservation,
		Namespace:     event.NamespaceLocal,
		Actor:         actor,
		TsLogical:     1,
		PrevEventHash: &genesisID,
		TimestampUTC:  now,
		Payload:       seedPayload,
	}
	if _, err := signing.SignEvent(seedEvent, rootKP.PrivateKey, rootKP.KeyID); err != nil {
		return nil, err
	}

	w, err := OpenWriter(filepath.Join(root, EventsFile))
	if err != nil {
		return nil, err
	}
	if err := w.Append(genesisEvent); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Append(seedEvent); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	manifest, err := BuildManifest(root)
	if err != nil {
		return nil, err
	}
	merkleRoot, err := manifest.MerkleRoot()
	if err != nil {
		return nil, err
	}
	if err := WriteManifestArtifacts(root, manifest, merkleRoot); err != nil {
		return nil, err
	}

	sig, err := signing.SignManifest(merkleRoot, rootKP.KeyID, SpecVersion, now, rootKP.PrivateKey)
	if err != nil {
		return nil, err
	}
	sigRaw, err := json.Marshal(sig)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(root, "manifest.sig"), sigRaw, 0o644); err != nil {
		return nil, err
	}

	return result, nil
}

func b64(priv ed25519.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(priv)
}

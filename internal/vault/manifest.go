// Package vault owns the on-disk vault directory: manifest
// construction, path safety, Merkle sealing, and bootstrap of a fresh
// vault from an empty directory.
package vault

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/provara-protocol/provara/internal/canonical"
	"github.com/provara-protocol/provara/internal/merkle"
	"github.com/provara-protocol/provara/internal/verrors"
)

const SpecVersion = "1.0"

// ExcludedFiles are the three manifest artifacts themselves — they are
// never hashed into their own manifest.
var ExcludedFiles = map[string]bool{
	"manifest.json":   true,
	"manifest.sig":    true,
	"merkle_root.txt": true,
}

// RequiredFiles is the spec-mandated set a compliant vault must contain.
var RequiredFiles = []string{
	"identity/genesis.json",
	"identity/keys.json",
	"events/events.ndjson",
	"policies/sync_contract.json",
	"policies/safety_policy.json",
	"policies/retention_policy.json",
	"manifest.json",
}

// FileEntry is one manifest row.
type FileEntry struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest is the canonical-JSON listing of every vault file.
type Manifest struct {
	SpecVersion string      `json:"spec_version"`
	FileCount   int         `json:"file_count"`
	Files       []FileEntry `json:"files"`
}

// BuildManifest walks root, hashing every regular file not in
// ExcludedFiles, rejecting any path that escapes root.
func BuildManifest(root string) (*Manifest, error) {
	var entries []FileEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ExcludedFiles[rel] {
			return nil
		}
		if !IsSafePath(root, rel) {
			return verrors.Newf(verrors.CodePathUnsafe, "manifest path escapes vault root: %s", rel).WithSection("4.G")
		}
		if !d.Type().IsRegular() {
			return nil
		}
		digest, size, err := merkle.HashFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, FileEntry{Path: rel, Size: size, SHA256: digest})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return &Manifest{SpecVersion: SpecVersion, FileCount: len(entries), Files: entries}, nil
}

// Bytes returns the manifest's canonical JSON encoding.
func (m *Manifest) Bytes() ([]byte, error) {
	return canonical.Bytes(m)
}

// MerkleRoot computes the Merkle root over the manifest's file entries:
// each leaf is the canonical bytes of one FileEntry.
func (m *Manifest) MerkleRoot() (string, error) {
	leaves := make([][]byte, len(m.Files))
	for i, f := range m.Files {
		b, err := canonical.Bytes(f)
		if err != nil {
			return "", err
		}
		leaves[i] = b
	}
	return merkle.ComputeRootHex(leaves)
}

// CheckRequiredFiles verifies every spec-required path is present in
// the manifest. Paths in ExcludedFiles (manifest.json itself) are never
// listed in a manifest and are skipped.
func (m *Manifest) CheckRequiredFiles() error {
	present := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		present[f.Path] = true
	}
	for _, req := range RequiredFiles {
		if ExcludedFiles[req] {
			continue
		}
		if !present[req] {
			return verrors.Newf(verrors.CodeVaultStructureInvalid, "required file missing: %s", req).WithSection("3")
		}
	}
	return nil
}

// WriteManifestArtifacts writes manifest.json, merkle_root.txt to root.
// manifest.sig is written separately once the root has been signed.
func WriteManifestArtifacts(root string, m *Manifest, merkleRootHex string) error {
	b, err := m.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(root, "manifest.json"), b, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, "merkle_root.txt"), []byte(merkleRootHex+"\n"), 0o644)
}

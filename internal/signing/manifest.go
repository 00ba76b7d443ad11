package signing

import (
	"crypto/ed25519"

	"github.com/provara-protocol/provara/internal/canonical"
)

// ManifestSignature is the signed-root record written to manifest.sig:
// {merkle_root, key_id, spec_version, signed_at_utc, sig}, signing the
// canonical bytes of all fields except sig.
type ManifestSignature struct {
	MerkleRoot   string `json:"merkle_root"`
	KeyID        string `json:"key_id"`
	SpecVersion  string `json:"spec_version"`
	SignedAtUTC  string `json:"signed_at_utc"`
	Sig          string `json:"sig"`
}

func (m ManifestSignature) unsignedBytes() ([]byte, error) {
	cp := m
	cp.Sig = ""
	return canonical.Bytes(struct {
		MerkleRoot  string `json:"merkle_root"`
		KeyID       string `json:"key_id"`
		SpecVersion string `json:"spec_version"`
		SignedAtUTC string `json:"signed_at_utc"`
	}{cp.MerkleRoot, cp.KeyID, cp.SpecVersion, cp.SignedAtUTC})
}

// SignManifest signs merkleRoot under priv/keyID, stamping signedAtUTC.
func SignManifest(merkleRoot, keyID, specVersion, signedAtUTC string, priv ed25519.PrivateKey) (*ManifestSignature, error) {
	m := ManifestSignature{
		MerkleRoot:  merkleRoot,
		KeyID:       keyID,
		SpecVersion: specVersion,
		SignedAtUTC: signedAtUTC,
	}
	b, err := m.unsignedBytes()
	if err != nil {
		return nil, err
	}
	m.Sig = Sign(priv, b)
	return &m, nil
}

// VerifyManifest checks m's signature under pub, and optionally asserts
// the signed root equals expectedRoot.
func VerifyManifest(m *ManifestSignature, pub ed25519.PublicKey, expectedRoot string) bool {
	if expectedRoot != "" && m.MerkleRoot != expectedRoot {
		return false
	}
	b, err := m.unsignedBytes()
	if err != nil {
		return false
	}
	return Verify(pub, b, m.Sig)
}

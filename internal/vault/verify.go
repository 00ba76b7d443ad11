package vault

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/keyring"
	"github.com/provara-protocol/provara/internal/redaction"
	"github.com/provara-protocol/provara/internal/signing"
	"github.com/provara-protocol/provara/internal/verrors"
)

// VerifyOptions controls how Verify runs.
type VerifyOptions struct {
	// Historical, when true, verifies signatures with the resolver
	// that ignores key revocation status (for replaying vaults whose
	// signing keys have since been rotated out).
	Historical bool
}

// Failure pairs one verification error with the event (if any) it
// concerns, for CLI reporting.
type Failure struct {
	EventID string
	Err     *verrors.Error
}

// Report is the outcome of a full vault verification pass.
type Report struct {
	OK       bool
	Failures []Failure
}

func (r *Report) fail(eventID string, err *verrors.Error) {
	r.Failures = append(r.Failures, Failure{EventID: eventID, Err: err})
}

// Verify runs every integrity check over the vault at root: structural
// event validation, event_id re-derivation, signature verification,
// per-actor chain linkage, duplicate event-id detection, and Merkle
// root recomputation against the stored manifest and signed root.
// Verification is all-or-nothing: Report.OK is false if any check
// fails, but every event is still checked so the caller gets a
// complete failure list rather than stopping at the first one.
func Verify(root string, opts VerifyOptions) (*Report, error) {
	report := &Report{OK: true}

	keys, err := keyring.Load(filepath.Join(root, "identity/keys.json"))
	if err != nil {
		return nil, err
	}

	events, err := ReadEvents(filepath.Join(root, EventsFile))
	if err != nil {
		return nil, err
	}

	for _, id := range event.DuplicateEventIDs(events) {
		report.fail(id, verrors.Newf(verrors.CodeDuplicateEventID, "duplicate event_id %s in log", id).WithSection("4.D"))
	}

	for _, e := range events {
		if redaction.IsTombstoned(e.Payload) {
			// Tombstones intentionally break the targeted event's own
			// signature (§4.J); verifiers recognize and accept them
			// rather than treating the mismatch as tampering.
			continue
		}

		if err := event.ValidateStructure(e); err != nil {
			var ve *verrors.Error
			verrors.As(err, &ve)
			report.fail(e.EventID, ve)
			continue
		}

		pub, resolveErr := resolvePublicKey(keys, e.ActorKeyID, opts.Historical)
		if resolveErr != nil {
			var ve *verrors.Error
			verrors.As(resolveErr, &ve)
			report.fail(e.EventID, ve)
			continue
		}
		if err := signing.VerifyEvent(e, pub); err != nil {
			var ve *verrors.Error
			verrors.As(err, &ve)
			report.fail(e.EventID, ve)
		}
	}

	for actor, chain := range event.BuildChains(events) {
		if err := event.ValidateChain(actor, chain); err != nil {
			var ve *verrors.Error
			verrors.As(err, &ve)
			report.fail("", ve)
		}
	}

	forks := event.ForkGroups(events)
	for actor, groups := range forks {
		for _, group := range groups {
			ids := make([]string, len(group))
			for i, e := range group {
				ids[i] = e.EventID
			}
			report.fail("", verrors.Newf(verrors.CodeForkDetected, "actor %s has competing events: %s", actor, strings.Join(ids, ", ")).
				WithSection("4.I").WithContext("actor", actor).WithContext("competing_event_ids", ids))
		}
	}

	if err := verifyManifestAndRoot(root, report); err != nil {
		return nil, err
	}

	report.OK = len(report.Failures) == 0
	return report, nil
}

func resolvePublicKey(keys *keyring.Registry, keyID string, historical bool) (ed25519.PublicKey, error) {
	if historical {
		return keys.ResolveHistorical(keyID)
	}
	return keys.Resolve(keyID)
}

func verifyManifestAndRoot(root string, report *Report) error {
	storedRootBytes, err := os.ReadFile(filepath.Join(root, "merkle_root.txt"))
	if err != nil {
		return err
	}
	storedRoot := strings.TrimSpace(string(storedRootBytes))

	manifestRaw, err := os.ReadFile(filepath.Join(root, "manifest.json"))
	if err != nil {
		return err
	}
	var m Manifest
	if err := json.Unmarshal(manifestRaw, &m); err != nil {
		return err
	}
	if err := m.CheckRequiredFiles(); err != nil {
		var ve *verrors.Error
		verrors.As(err, &ve)
		report.fail("", ve)
	}

	recomputed, err := BuildManifest(root)
	if err != nil {
		return err
	}
	recomputedRoot, err := recomputed.MerkleRoot()
	if err != nil {
		return err
	}
	if recomputedRoot != storedRoot {
		report.fail("", verrors.Newf(verrors.CodeHashMismatch,
			"merkle_root.txt (%s) does not match root recomputed from current files (%s)", storedRoot, recomputedRoot).
			WithSection("4.G"))
	}

	sigRaw, err := os.ReadFile(filepath.Join(root, "manifest.sig"))
	if err != nil {
		return err
	}
	var sig signing.ManifestSignature
	if err := json.Unmarshal(sigRaw, &sig); err != nil {
		return err
	}
	keys, err := keyring.Load(filepath.Join(root, "identity/keys.json"))
	if err != nil {
		return err
	}
	pub, err := keys.Resolve(sig.KeyID)
	if err != nil {
		var ve *verrors.Error
		verrors.As(err, &ve)
		report.fail("", ve)
		return nil
	}
	if !signing.VerifyManifest(&sig, pub, storedRoot) {
		report.fail("", verrors.New(verrors.CodeInvalidSignature, "manifest.sig does not verify against manifest_root.txt").WithSection("4.C"))
	}
	return nil
}

package signing

import (
	"crypto/ed25519"

	"github.com/provara-protocol/provara/internal/event"
	"github.com/provara-protocol/provara/internal/verrors"
)

// SignEvent stamps e.ActorKeyID, derives event_id, and signs the
// canonical bytes of e minus sig (event_id is part of the signed
// payload). e is mutated in place and also returned for convenience.
func SignEvent(e *event.Event, priv ed25519.PrivateKey, keyID string) (*event.Event, error) {
	e.ActorKeyID = keyID
	e.Sig = ""
	id, err := event.DeriveEventID(e)
	if err != nil {
		return nil, err
	}
	e.EventID = id

	b, err := event.SigningBytes(e)
	if err != nil {
		return nil, err
	}
	e.Sig = Sign(priv, b)
	return e, nil
}

// VerifyEvent checks e's signature under pub, then cross-checks that
// e.EventID matches what its own content derives to. The signature
// covers event_id as part of the signed payload, so tampering with any
// field (including a stale event_id left unchanged by the tamperer)
// fails signature verification first — matching how an attacker who
// edits a log line in place, without re-signing, is caught.
func VerifyEvent(e *event.Event, pub ed25519.PublicKey) error {
	if e.Sig == "" {
		return verrors.Newf(verrors.CodeInvalidSignature, "event %s has no signature", e.EventID).WithSection("4.C")
	}
	b, err := event.SigningBytes(e)
	if err != nil {
		return err
	}
	if !Verify(pub, b, e.Sig) {
		return verrors.Newf(verrors.CodeInvalidSignature, "signature verification failed for event %s", e.EventID).
			WithSection("4.C").WithContext("event_id", e.EventID)
	}

	wantID, err := event.DeriveEventID(e)
	if err != nil {
		return verrors.Wrap(verrors.CodeHashFormat, "failed to derive event_id", err).WithSection("3")
	}
	if wantID != e.EventID {
		return verrors.Newf(verrors.CodeHashMismatch, "event_id mismatch: event claims %s, content derives %s", e.EventID, wantID).
			WithSection("3").WithContext("event_id", e.EventID).WithContext("derived", wantID)
	}
	return nil
}

// Package shred implements crypto-shredding: payloads marked
// privacy-sensitive are encrypted under a freshly generated AES-256-GCM
// key, and the raw key lives only in a mutable sidecar store outside
// the signed event log. Deleting the sidecar row is erasure — the
// ciphertext stays in the log forever, but it is unrecoverable, and
// every signature over the (now-opaque) payload still verifies.
package shred

import (
	dbm "github.com/cometbft/cometbft-db"
)

// Sidecar wraps a CometBFT dbm.DB as a kid -> raw_key store. It is the
// only mutable state in the system and is never listed in the vault
// manifest.
type Sidecar struct {
	db dbm.DB
}

// OpenSidecar opens (creating if absent) a goleveldb-backed sidecar
// database under dir.
func OpenSidecar(name, dir string) (*Sidecar, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, err
	}
	return &Sidecar{db: db}, nil
}

// NewSidecar wraps an already-open dbm.DB, for tests that want an
// in-memory backend.
func NewSidecar(db dbm.DB) *Sidecar {
	return &Sidecar{db: db}
}

// Put stores rawKey under kid, durably.
func (s *Sidecar) Put(kid string, rawKey []byte) error {
	return s.db.SetSync([]byte(kid), rawKey)
}

// Get returns the raw key for kid, or nil if the row has been erased
// or never existed.
func (s *Sidecar) Get(kid string) ([]byte, error) {
	v, err := s.db.Get([]byte(kid))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Erase deletes the kid row. The payload ciphertext elsewhere in the
// vault becomes permanently unrecoverable the moment this returns.
func (s *Sidecar) Erase(kid string) error {
	return s.db.DeleteSync([]byte(kid))
}

// Close releases the underlying database handle.
func (s *Sidecar) Close() error {
	return s.db.Close()
}

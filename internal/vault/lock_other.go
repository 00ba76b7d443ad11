//go:build !unix

package vault

import (
	"fmt"
	"os"
)

// lockFile falls back to a sentinel lock file on platforms without
// flock. It is not a blocking lock — concurrent writers on such
// platforms must retry; the vault is still single-writer in practice.
func lockFile(f *os.File) error {
	lockPath := f.Name() + ".lock"
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("vault: acquire lock file %s: %w", lockPath, err)
	}
	return lf.Close()
}

func unlockFile(f *os.File) error {
	return os.Remove(f.Name() + ".lock")
}

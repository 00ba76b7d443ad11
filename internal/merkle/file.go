package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// HashFile streams the file at path through SHA-256 in fixed-size
// chunks, returning the lower-hex digest and byte size without
// materializing the whole file in memory.
func HashFile(path string) (digestHex string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

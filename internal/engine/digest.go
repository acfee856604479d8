package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// digestReadBufferSize is the streaming read buffer for the up-front
// whole-file digest, per spec.md §4.2.
const digestReadBufferSize = 64 * 1024

// hashFile streams path once with a 64 KiB buffer and returns the lowercase
// hex SHA-256 of its contents. Computed up front so the digest commits to
// the source content rather than to whatever bytes made it through upload.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return hashReader(f)
}

func hashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, digestReadBufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

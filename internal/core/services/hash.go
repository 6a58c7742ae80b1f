package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// hashBufSize bounds the buffer used when hashing streams, so arbitrarily
// large payloads never fully materialise in memory.
const hashBufSize = 32 * 1024

// HashReader computes the lowercase hex SHA-256 of everything readable
// from r, returning the digest and the number of bytes consumed.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.CopyBuffer(h, r, make([]byte, hashBufSize))
	if err != nil {
		return "", n, fmt.Errorf("hashing stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashBytes computes the lowercase hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashString computes the lowercase hex SHA-256 of the UTF-8 bytes of s.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// Package hash computes stable content-addressable identifiers for
// deduplication and idempotency keys
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Bytes returns the hex SHA-256 digest of raw content
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Reader digests r without buffering the whole content
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Text normalizes s before hashing so that encoding-level differences
// (composed vs decomposed unicode, CRLF line endings, surrounding
// whitespace) do not produce distinct identities for the same logical text
func Text(s string) string {
	return Bytes([]byte(NormalizeText(s)))
}

// NormalizeText applies NFC, converts CRLF and lone CR to LF, and trims
// surrounding whitespace
func NormalizeText(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

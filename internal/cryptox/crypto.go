// Package cryptox holds the key derivation used for login and the content
// hash that addresses files in the shared store.
package cryptox

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// MakeVerifier derives the value the server stores instead of the password.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// ContentHashLen is the length of a formatted content hash.
const ContentHashLen = sha1.Size * 2

// NewContentHash returns the hash function that names stored files.
func NewContentHash() hash.Hash {
	return sha1.New()
}

// FormatContentHash renders a digest as upper-case hex.
func FormatContentHash(sum []byte) string {
	return strings.ToUpper(hex.EncodeToString(sum))
}

// ContentHash consumes r and returns its content hash and size.
func ContentHash(r io.Reader) (string, int64, error) {
	h := NewContentHash()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return FormatContentHash(h.Sum(nil)), n, nil
}

// ContentHashBytes is ContentHash for an in-memory payload.
func ContentHashBytes(b []byte) string {
	sum := sha1.Sum(b)
	return FormatContentHash(sum[:])
}

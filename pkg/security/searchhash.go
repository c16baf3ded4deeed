package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Searchable hashes allow equality lookups over values whose plaintext is
// never stored (e.g. finding a profile by SSN). Wire format:
// hash_<saltHex>_<digestHex>. Only exact-match search is possible; range
// queries are not, which is the accepted trade-off.
const (
	hashPrefix     = "hash"
	hashSaltLen    = 16
	hashDigestLen  = 32
	hashIterations = 10000
)

// normalizeSearchable case-folds and trims so that lookups are insensitive to
// formatting differences in user input.
func normalizeSearchable(plaintext string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(plaintext)))
}

// GenerateSearchableHash returns a salted, iterated one-way hash of
// plaintext. Each call draws a fresh salt, so the same plaintext produces
// different stored values; equality is checked via VerifySearchableHash.
func GenerateSearchableHash(plaintext string) (string, error) {
	salt := make([]byte, hashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("searchable hash: salt: %w", err)
	}

	digest := pbkdf2.Key(normalizeSearchable(plaintext), salt, hashIterations, hashDigestLen, sha256.New)

	return fmt.Sprintf("%s_%s_%s", hashPrefix, hex.EncodeToString(salt), hex.EncodeToString(digest)), nil
}

// VerifySearchableHash reports whether plaintext matches a stored hash. It
// recomputes the digest with the embedded salt and compares in constant
// time. Malformed stored values verify as false rather than erroring, since
// a corrupt hash can simply never match.
func VerifySearchableHash(plaintext, stored string) bool {
	parts := strings.Split(stored, "_")
	if len(parts) != 3 || parts[0] != hashPrefix {
		return false
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	digest, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}

	recomputed := pbkdf2.Key(normalizeSearchable(plaintext), salt, hashIterations, len(digest), sha256.New)
	return subtle.ConstantTimeCompare(digest, recomputed) == 1
}

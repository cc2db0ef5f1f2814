// Package cryptox hashes account secrets. Passwords and security answers are
// stored only as salted digests; the plain values never reach the store.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"golang.org/x/crypto/argon2"
)

// SaltSize is the number of random bytes in a salt before hex encoding.
const SaltSize = 16

// Supported digest algorithms.
const (
	AlgorithmSHA256   = "sha256"
	AlgorithmArgon2ID = "argon2id"
)

const argon2Prefix = AlgorithmArgon2ID + "$"

// GenerateSalt returns a fresh random salt, hex encoded.
func GenerateSalt() (string, error) {
	return common.MakeRandHexString(SaltSize)
}

// NormalizeAnswer canonicalises a security answer before hashing, so that
// "Fluffy " and "fluffy" produce the same digest.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// Hasher produces salted digests with the configured algorithm and verifies
// digests produced by any supported algorithm.
type Hasher struct {
	algorithm string
}

func NewHasher(algorithm string) (*Hasher, error) {
	switch algorithm {
	case "", AlgorithmSHA256:
		return &Hasher{algorithm: AlgorithmSHA256}, nil
	case AlgorithmArgon2ID:
		return &Hasher{algorithm: AlgorithmArgon2ID}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Hash digests secret+salt. SHA-256 digests are 64 lower-case hex characters;
// argon2id digests carry an "argon2id$" prefix.
func (h *Hasher) Hash(secret, salt string) string {
	if h.algorithm == AlgorithmArgon2ID {
		return argon2Prefix + hex.EncodeToString(deriveKey([]byte(secret), []byte(salt)))
	}
	return sha256Hex(secret, salt)
}

// Verify reports whether digest was produced from secret and salt. The
// algorithm is taken from the digest, not from the hasher.
func (h *Hasher) Verify(secret, salt, digest string) bool {
	if digest == "" {
		return false
	}

	var want string
	if strings.HasPrefix(digest, argon2Prefix) {
		want = argon2Prefix + hex.EncodeToString(deriveKey([]byte(secret), []byte(salt)))
	} else {
		want = sha256Hex(secret, salt)
	}

	return subtle.ConstantTimeCompare([]byte(want), []byte(digest)) == 1
}

func sha256Hex(secret, salt string) string {
	sum := sha256.Sum256([]byte(secret + salt))
	return hex.EncodeToString(sum[:])
}

func deriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// Package crypto hashes and checks account passwords with Argon2id.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// SaltLen is the per-account salt size.
const SaltLen = 16

// Params are the Argon2id cost settings.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// Default is used for every stored credential. Changing it invalidates
// existing hashes, since the parameters are not stored alongside them.
var Default = Params{Time: 3, Memory: 64 * 1024, Threads: 1, KeyLen: 32}

func (p Params) hash(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}

// RandBytes returns n bytes from crypto/rand.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// HashPassword derives the stored hash for password and salt.
func HashPassword(password, salt []byte) []byte { return Default.hash(password, salt) }

// NewCredential returns a fresh salt and the matching hash for a new account.
func NewCredential(password string) (salt, hash []byte, err error) {
	salt, err = RandBytes(SaltLen)
	if err != nil {
		return nil, nil, err
	}
	return salt, HashPassword([]byte(password), salt), nil
}

// VerifyPassword compares in constant time. An empty stored hash never matches.
func VerifyPassword(password, salt, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(HashPassword(password, salt), expected) == 1
}

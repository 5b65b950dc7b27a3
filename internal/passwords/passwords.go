// Package passwords produces salts and salted password hashes.
package passwords

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32

	// SaltSize is the number of random bytes in a salt.
	SaltSize = 16
)

// dummySalt is hashed against when no stored credentials exist so that a
// lookup miss costs the same as a wrong password.
var dummySalt = base64.StdEncoding.EncodeToString(make([]byte, SaltSize))

// CreateRandomSalt returns SaltSize random bytes, base64 encoded.
func CreateRandomSalt() (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// HashPassword derives the base64 argon2id hash of password with salt.
// A salt that is not valid base64 is used as raw bytes.
func HashPassword(password, salt string) string {
	raw, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		raw = []byte(salt)
	}
	key := argon2.IDKey([]byte(password), raw, argonTime, argonMemory, argonThreads, argonKeyLen)
	return base64.StdEncoding.EncodeToString(key)
}

// Matches reports whether password hashes to hash under salt.
func Matches(password, salt, hash string) bool {
	computed := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// Burn performs the same work as Matches without any stored credentials.
func Burn(password string) {
	_ = HashPassword(password, dummySalt)
}

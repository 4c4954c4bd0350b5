// Package password wraps credential hashing for member accounts and the
// digest used to store refresh tokens at rest.
package password

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost trades login latency for resistance to offline cracking.
const bcryptCost = 12

// MinLength is the shortest password accepted at registration.
const MinLength = 8

// Hash derives a bcrypt hash suitable for storage.
func Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plain matches the stored bcrypt hash.
func Verify(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// HashToken digests a refresh token with SHA-256 so the raw token never
// touches the database. Lookup happens by digest equality, so a fast
// hash is fine here.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidatePassword enforces the registration password policy.
func ValidatePassword(plain string) bool {
	return len(plain) >= MinLength
}

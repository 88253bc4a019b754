package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash, the only format written going forward.
func HashPassword(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("empty password")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(h), nil
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

// VerifyPassword compares plain against a stored credential. Legacy argon2id
// hashes and plaintext values still verify but report needsUpgrade.
func VerifyPassword(stored, plain string) (ok, needsUpgrade bool) {
	if stored == "" || plain == "" {
		return false, false
	}
	switch {
	case isBcrypt(stored):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil, false
	case strings.HasPrefix(stored, "$argon2id$"):
		match, err := argon2id.ComparePasswordAndHash(plain, stored)
		if err != nil || !match {
			return false, false
		}
		return true, true
	default:
		if subtle.ConstantTimeCompare([]byte(stored), []byte(plain)) == 1 {
			return true, true
		}
		return false, false
	}
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// BurnCompare spends one bcrypt comparison so unknown identifiers cost the same
// as wrong passwords.
func BurnCompare(plain string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}

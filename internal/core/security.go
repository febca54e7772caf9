// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	saltLength   = 32
)

// HashPassword returns "salt_hex:key_hex" using a fresh random salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// VerifyPassword reports whether password matches encoded. A malformed
// encoded value never matches.
func VerifyPassword(password, encoded string) bool {
	salt, key, ok := decodeHash(encoded)
	if !ok {
		return false
	}

	derived, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, len(key))
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(key, derived) == 1
}

var dummyHash string

func init() {
	hash, err := HashPassword("dummy_password_for_timing_attack_prevention")
	if err != nil {
		panic(fmt.Sprintf("security: failed to generate dummy hash: %v", err))
	}
	dummyHash = hash
}

// VerifyPasswordTimingSafe runs a full derivation even when the account has
// no stored hash, so a missing account costs the same as a wrong password.
func VerifyPasswordTimingSafe(password string, encoded *string) bool {
	if encoded == nil || *encoded == "" {
		_ = VerifyPassword(password, dummyHash)
		return false
	}
	return VerifyPassword(password, *encoded)
}

func decodeHash(encoded string) ([]byte, []byte, bool) {
	saltHex, keyHex, found := strings.Cut(encoded, ":")
	if !found || saltHex == "" || keyHex == "" {
		return nil, nil, false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, nil, false
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) == 0 {
		return nil, nil, false
	}

	return salt, key, true
}

func GenerateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func CompareTokenHash(token, hash string) bool {
	tokenHash := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(tokenHash), []byte(hash)) == 1
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// APIKeyPrefix marks machine credentials. Session-token paths reject any
// bearer value carrying it.
const APIKeyPrefix = "n2f_"

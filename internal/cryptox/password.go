// Package cryptox hashes and verifies relay passwords with argon2id.
//
// Encoded hashes have the form
//
//	argon2id$<base64 salt>$<base64 key>
//
// The parameters are fixed; changing them requires a new prefix.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/dmitrijs2005/exius/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	hashPrefix  = "argon2id"
	saltLength  = 16
	keyLength   = 32
	argonTime   = 1
	argonMemory = 64 * 1024
	argonLanes  = 4
)

// ErrMalformedHash is returned when a stored hash cannot be decoded.
var ErrMalformedHash = errors.New("malformed password hash")

var b64 = base64.RawStdEncoding

func deriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonLanes, keyLength)
}

// HashPassword returns the encoded argon2id hash of password. An empty
// password is kept empty so relays without a secret stay open.
func HashPassword(password string) string {
	if password == "" {
		return ""
	}
	salt := common.GenerateRandByteArray(saltLength)
	key := deriveKey([]byte(password), salt)
	return hashPrefix + "$" + b64.EncodeToString(salt) + "$" + b64.EncodeToString(key)
}

// IsHashed reports whether s already looks like an encoded hash.
func IsHashed(s string) bool {
	return strings.HasPrefix(s, hashPrefix+"$")
}

// VerifyPassword checks candidate against an encoded hash in constant time.
// An empty hash accepts only the empty candidate.
func VerifyPassword(encoded, candidate string) (bool, error) {
	if encoded == "" {
		return candidate == "", nil
	}
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != hashPrefix {
		return false, ErrMalformedHash
	}
	salt, err := b64.DecodeString(parts[1])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := b64.DecodeString(parts[2])
	if err != nil || len(want) != keyLength {
		return false, ErrMalformedHash
	}
	got := deriveKey([]byte(candidate), salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

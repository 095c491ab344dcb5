package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

// TokenBytes is the length of the random material behind a token.
const TokenBytes = 32

// NewToken generates a fixed-length cryptographically random token value.
func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// TokensEqual compares two token values in constant time.
func TokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the amount of randomness in a bearer token (256 bits).
const TokenBytes = 32

// GenerateToken returns a new hex-encoded bearer token and the digest stored for it.
func GenerateToken() (string, []byte, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	token := hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken is the at-rest form of a bearer token.
func HashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// SecretsEqual compares two operator secrets without leaking timing.
func SecretsEqual(given, expected string) bool {
	a := sha256.Sum256([]byte(given))
	b := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateKey returns n random bytes encoded as URL-safe base64, suitable
// for session identifiers and single-use tokens.
func GenerateKey(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
